package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/graphmint/rescache/serv"
)

var version = "dev"

var confPath string

func main() {
	root := &cobra.Command{
		Use:   "rescache",
		Short: "Full-response caching proxy for GraphQL servers",
	}
	root.PersistentFlags().StringVarP(&confPath, "config", "c",
		"rescache.yml", "path to config file")

	root.AddCommand(serveCmd(), versionCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the caching proxy",
		RunE: func(_ *cobra.Command, _ []string) error {
			conf, err := serv.ReadInConfig(confPath)
			if err != nil {
				return err
			}
			if conf.Upstream.URL == "" {
				return fmt.Errorf("upstream.url must be set")
			}

			s, err := serv.NewService(conf, serv.NewHTTPExecutor(conf.Upstream.URL))
			if err != nil {
				return err
			}
			defer s.Close()

			return s.Start()
		},
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(*cobra.Command, []string) {
			fmt.Println(version)
		},
	}
}
