// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/pdiddy/imgsieve/internal/imageformat"
)

var identifyCmd = &cobra.Command{
	Use:   "identify [files...]",
	Short: "Classify files by image format without extracting",
	Long: `Identify reads the leading bytes of each file and reports its image
format. Content wins over the file extension; the extension is consulted
only when the bytes match no known signature.`,
	RunE: runIdentify,
}

func init() {
	identifyCmd.Flags().Bool("json", false, "output results as JSON")

	rootCmd.AddCommand(identifyCmd)
}

type identification struct {
	Path   string `json:"path"`
	Format string `json:"format,omitempty"`
	Error  string `json:"error,omitempty"`
}

func runIdentify(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("provide one or more files to identify")
	}

	results := make([]identification, 0, len(args))
	failed := 0
	for _, path := range args {
		id := identification{Path: path}
		format, err := identifyFile(path)
		if err != nil {
			id.Error = err.Error()
			failed++
		} else if format == imageformat.Unknown {
			id.Format = "unknown"
		} else {
			id.Format = string(format)
		}
		results = append(results, id)
	}

	jsonOutput, _ := cmd.Flags().GetBool("json")
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		for _, id := range results {
			if id.Error != "" {
				fmt.Printf("%s: error: %s\n", id.Path, id.Error)
				continue
			}
			fmt.Printf("%s: %s\n", id.Path, id.Format)
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d file(s) could not be read", failed)
	}
	return nil
}

func identifyFile(path string) (imageformat.Format, error) {
	f, err := os.Open(path)
	if err != nil {
		return imageformat.Unknown, err
	}
	defer f.Close()

	prefix := make([]byte, imageformat.SniffLen)
	n, err := io.ReadFull(f, prefix)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return imageformat.Unknown, err
	}

	format := imageformat.Detect(prefix[:n])
	if format == imageformat.Unknown {
		format = imageformat.FromExtension(path)
	}
	return format, nil
}
