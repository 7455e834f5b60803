package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ensiasd/academics/internal/archive"
	"github.com/ensiasd/academics/pkg/config"
)

func newArchiveCmd() *cobra.Command {
	var (
		yearID   string
		minutes  string
		bulletin string
	)

	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Fetch archived deliberation minutes or bulletins",
		RunE: func(cmd *cobra.Command, args []string) error {
			if (minutes == "") == (bulletin == "") {
				return fmt.Errorf("pass exactly one of --minutes or --bulletin")
			}
			root, err := resolveRoot(cmd)
			if err != nil {
				return err
			}
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			client, err := archive.New(ctx, cfg.Storage, config.ArchiveDir(root))
			if err != nil {
				return err
			}

			var data []byte
			if minutes != "" {
				data, err = client.GetMinutes(ctx, yearID, minutes)
			} else {
				data, err = client.GetBulletin(ctx, yearID, bulletin)
			}
			if err != nil {
				return err
			}
			_, err = os.Stdout.Write(data)
			return err
		},
	}

	cmd.Flags().StringVar(&yearID, "year", "", "Academic year id (required)")
	cmd.Flags().StringVar(&minutes, "minutes", "", "Deliberation id whose minutes to print")
	cmd.Flags().StringVar(&bulletin, "bulletin", "", "Student id whose bulletin to print")
	_ = cmd.MarkFlagRequired("year")

	return cmd
}
