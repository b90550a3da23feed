package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jpequegn/parallelcache/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect or clear the SQLite cache oracle",
}

var cacheInspectCmd = &cobra.Command{
	Use:   "inspect",
	Short: "List cached call fingerprints",
	RunE:  cacheInspect,
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every entry from the cache",
	RunE:  cacheClear,
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInspectCmd, cacheClearCmd)

	cacheCmd.PersistentFlags().String("cache-path", "parallelcache.db", "sqlite cache path")
}

func cacheInspect(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("cache-path")
	oracle, err := cache.NewSQLiteOracle(path)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer oracle.Close()

	fingerprints, err := oracle.Inspect(context.Background())
	if err != nil {
		return fmt.Errorf("inspect cache: %w", err)
	}

	if len(fingerprints) == 0 {
		fmt.Println("cache is empty")
		return nil
	}

	for _, fp := range fingerprints {
		fmt.Println(fp)
	}
	return nil
}

func cacheClear(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("cache-path")
	oracle, err := cache.NewSQLiteOracle(path)
	if err != nil {
		return fmt.Errorf("open cache: %w", err)
	}
	defer oracle.Close()

	if err := oracle.Clear(context.Background()); err != nil {
		return fmt.Errorf("clear cache: %w", err)
	}

	fmt.Println("cache cleared")
	return nil
}
