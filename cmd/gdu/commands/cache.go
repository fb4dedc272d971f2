package commands

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/l3aro/go-defuse/pkg/cache"
)

// cacheCmd groups the goal cache commands
var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the goal cache",
}

var cacheStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show goal cache statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		jsonOutput, _ := cmd.Flags().GetBool("json")

		c := cache.New(cache.Options{MaxSize: appConfig.CacheSize})
		if err := cache.LoadFromDir(c, appConfig.CacheDir); err != nil {
			return err
		}
		st := c.Stats()

		var size int64
		if info, err := os.Stat(cacheFile()); err == nil {
			size = info.Size()
		}

		if jsonOutput {
			data, err := json.MarshalIndent(map[string]any{
				"dir":     appConfig.CacheDir,
				"entries": st.Length,
				"bytes":   size,
			}, "", "  ")
			if err != nil {
				return fmt.Errorf("marshaling JSON: %w", err)
			}
			fmt.Println(string(data))
			return nil
		}

		fmt.Printf("Cache directory: %s\n", appConfig.CacheDir)
		fmt.Printf("Entries: %s of %s\n", humanize.Comma(int64(st.Length)), humanize.Comma(int64(appConfig.CacheSize)))
		fmt.Printf("Size: %s\n", humanize.Bytes(uint64(size)))
		return nil
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every cached goal set",
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := os.Remove(cacheFile()); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("removing cache: %w", err)
		}
		fmt.Println("Goal cache cleared.")
		return nil
	},
}

func cacheFile() string {
	return filepath.Join(appConfig.CacheDir, cache.FileName)
}

func init() {
	cacheStatsCmd.Flags().BoolP("json", "j", false, "Output as JSON")
	cacheCmd.AddCommand(cacheStatsCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
