package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/spf13/cobra"

	"github.com/dspace-go/dsfront/internal/webclient"
)

var (
	snapshotOut      string
	snapshotBackend  string
	snapshotIdle     time.Duration
	snapshotShow     bool
	snapshotMatomoJS string
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot URL",
	Short: "Capture a rendered page and report its title and tracker",
	Long: `snapshot loads a page through a web client backend, by default a
headless Chrome, and prints its title and whether the Matomo tracker script
is present. With --out the DOM is written to a file.`,
	Args: cobra.ExactArgs(1),
	RunE: runSnapshot,
}

func init() {
	snapshotCmd.Flags().StringVarP(&snapshotOut, "out", "o", "", "Write the captured DOM to this file")
	snapshotCmd.Flags().StringVar(&snapshotBackend, "backend", string(webclient.ClientChromedp), "Web client backend: "+strings.Join(webclient.ListBackends(), "|"))
	snapshotCmd.Flags().DurationVar(&snapshotIdle, "idle", 0, "Network idle time before capture (chromedp)")
	snapshotCmd.Flags().BoolVar(&snapshotShow, "show-browser", false, "Run the browser with a window")
	snapshotCmd.Flags().StringVar(&snapshotMatomoJS, "tracker", "matomo.js", "Script name that identifies the tracker")
}

func runSnapshot(cmd *cobra.Command, args []string) error {
	wc, err := webclient.NewWebClient(webclient.Config{
		Client:      webclient.Client(snapshotBackend),
		Timeout:     timeout,
		IdleAfter:   snapshotIdle,
		ShowBrowser: snapshotShow,
	}, logger)
	if err != nil {
		return err
	}
	defer wc.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	resp, err := wc.Get(ctx, args[0])
	if err != nil {
		return err
	}
	if snapshotOut != "" {
		if err := os.WriteFile(snapshotOut, resp.Body, 0o644); err != nil {
			return fmt.Errorf("write snapshot: %w", err)
		}
	}

	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(resp.Body))
	if err != nil {
		return fmt.Errorf("parse snapshot: %w", err)
	}
	tracked := doc.Find(`script[src$="` + snapshotMatomoJS + `"]`).Length() > 0

	w := cmd.OutOrStdout()
	fmt.Fprintf(w, "status:  %d\n", resp.StatusCode)
	fmt.Fprintf(w, "title:   %s\n", strings.TrimSpace(doc.Find("title").First().Text()))
	fmt.Fprintf(w, "tracker: %t\n", tracked)
	return nil
}
