package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nupi-ai/whisper-runtime/internal/buildinfo"
	"github.com/nupi-ai/whisper-runtime/internal/models"
	"github.com/nupi-ai/whisper-runtime/internal/native"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Describe the local build or a remote daemon",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		if addr == "" {
			manifest, err := models.DefaultManifest()
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s\n", buildinfo.Info.Name, buildinfo.Info.Version)
			fmt.Fprintf(out, "whisper.cpp backend compiled in: %v\n", native.Available())
			fmt.Fprintf(out, "model variants: %v\n", manifest.Names())
			return nil
		}

		ctx, cancel := commandContext(cmd)
		defer cancel()
		client, closeConn, err := dialRemote()
		if err != nil {
			return err
		}
		defer closeConn()
		info, err := client.Info(ctx)
		if err != nil {
			return err
		}
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	},
}
