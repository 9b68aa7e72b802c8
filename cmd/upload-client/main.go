package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var (
	serverURL string
	timeout   time.Duration
)

var rootCmd = &cobra.Command{
	Use:   "upload-client",
	Short: "Client for the signed upload server",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&serverURL, "server", "s", "http://localhost:8080",
		"Base URL of the upload server")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 5*time.Minute,
		"Overall request timeout")

	rootCmd.AddCommand(newPutCmd())
	rootCmd.AddCommand(newURLCmd())
}

func newPutCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <file>",
		Short: "Upload a file and print its signed URL",
		Args:  cobra.ExactArgs(1),
		RunE:  runPut,
	}
}

func newURLCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "url <filename>",
		Short: "Print a fresh signed URL for an uploaded file",
		Args:  cobra.ExactArgs(1),
		RunE:  runURL,
	}
}

func runPut(cmd *cobra.Command, args []string) error {
	f, err := os.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", args[0], err)
	}
	defer f.Close()

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	// stream the form so large files are never held in memory
	pr, pw := io.Pipe()
	mw := multipart.NewWriter(pw)
	go func() {
		part, err := mw.CreateFormFile("file", filepath.Base(f.Name()))
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		n, err := io.Copy(part, f)
		if err != nil {
			pw.CloseWithError(err)
			return
		}
		log.Debug().Int64("bytesWritten", n).Msg("file streamed")
		pw.CloseWithError(mw.Close())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/v1/upload", pr)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	var out struct {
		Status  bool   `json:"status"`
		URL     string `json:"url"`
		Message string `json:"message"`
	}
	status, err := do(req, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("upload failed with status %d: %s", status, out.Message)
	}

	if out.URL == "" {
		log.Info().Msg("uploaded, server did not return a url")
		return nil
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.URL)
	return nil
}

func runURL(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()

	payload := map[string]any{"data": map[string]string{"filename": args[0]}}
	b, err := json.Marshal(payload)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, serverURL+"/api/v1/url", bytes.NewReader(b))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	var out struct {
		Success bool   `json:"success"`
		URL     string `json:"url"`
		Message string `json:"message"`
	}
	status, err := do(req, &out)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("url request failed with status %d: %s", status, out.Message)
	}
	fmt.Fprintln(cmd.OutOrStdout(), out.URL)
	return nil
}

// do sends req and decodes a JSON body into out when there is one.
func do(req *http.Request, out any) (int, error) {
	httpClient := &http.Client{
		Transport: &http.Transport{
			DisableKeepAlives: true,
		},
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	d, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, fmt.Errorf("failed to read response: %w", err)
	}
	log.Debug().Int("status", resp.StatusCode).Str("body", string(d)).Msg("response received")
	if len(d) == 0 {
		return resp.StatusCode, nil
	}
	if err := json.Unmarshal(d, out); err != nil {
		return resp.StatusCode, fmt.Errorf("unexpected response body: %w", err)
	}
	return resp.StatusCode, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
