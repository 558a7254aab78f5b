package commands

import (
	"log/slog"
	"os"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"hwscraper-backend/lib/browser"
	"hwscraper-backend/lib/keychain"
	"hwscraper-backend/lib/scrapers/eduka"
	"hwscraper-backend/lib/scrapers/manodienynas"
	"hwscraper-backend/lib/serviceutil"
	"hwscraper-backend/lib/session"
	"hwscraper-backend/services/extraction"
)

var (
	runUser   *string
	runSite   *string
	runConfig *string
)

func init() {
	runUser = runCmd.Flags().String("user", "", "User id to extract for.")
	runSite = runCmd.Flags().String("site", "", "Portal to extract from: manodienynas or eduka.")
	runConfig = runCmd.Flags().String("config", "scraperd.json5", "Path to the config file.")
	runCmd.MarkFlagRequired("user")
	runCmd.MarkFlagRequired("site")
	rootCmd.AddCommand(runCmd)
}

var runCmd = &cobra.Command{
	Use:   "run --user <id> --site <site>",
	Short: "Runs one extraction and prints everything it found.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if *runSite != manodienynas.Site && *runSite != eduka.Site {
			slog.Error("unknown site", "site", *runSite,
				"known", []string{manodienynas.Site, eduka.Site})
			os.Exit(1)
		}
		config := MustLoadConfig(*runConfig)

		db, err := OpenDB(config.Database)
		if err != nil {
			serviceutil.Fatal("failed to open state database", err)
		}
		defer db.Close()

		pool := browser.NewPool(browser.PoolOptions{
			MaxInstances: config.Browser.MaxInstances,
		})
		defer pool.Close()

		svc := extraction.NewService(extraction.ServiceOptions{
			Sessions:    session.NewStore(db, session.StoreOptions{}),
			Credentials: keychain.NewStore(db),
			Adapters: []extraction.Adapter{
				extraction.NewManoDienynas(extraction.ManoDienynasOptions{
					BaseURL:  config.Manodienynas.BaseUrl,
					Browsers: pool,
				}),
				extraction.NewEduka(extraction.EdukaOptions{
					BaseURL:  config.Eduka.BaseUrl,
					Browsers: pool,
				}),
			},
		})

		t1 := time.Now()
		result, err := svc.Run(ctx, *runUser, *runSite)
		if err != nil {
			serviceutil.Fatal("extraction run failed", err)
		}
		slog.Info("extraction finished",
			"items", len(result.Items),
			"failed_subsources", len(result.Failed),
			"session_reused", result.SessionReused,
			"strategy", result.Strategy,
			"seconds", time.Since(t1).Seconds())

		renderItems(result.Items)
		renderFailures(result.Failed)
	},
}

func renderItems(items []extraction.Item) {
	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Kind", "Subject", "Title", "Due", "Done"})

	for _, item := range items {
		due := ""
		if item.Due != nil {
			due = item.Due.Format("2006-01-02")
		}
		done := ""
		if item.Completed {
			done = "x"
		}
		t.AppendRow(table.Row{item.Kind, item.Subject, item.Title, due, done})
	}

	t.SetStyle(table.StyleRounded)
	t.Render()
}

func renderFailures(failures []extraction.SubsourceFailure) {
	if len(failures) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(os.Stdout)
	t.AppendHeader(table.Row{"Source", "Kind", "Detail"})
	for _, f := range failures {
		t.AppendRow(table.Row{f.Source, f.Kind, f.Detail})
	}
	t.SetStyle(table.StyleRounded)
	t.Render()
}
