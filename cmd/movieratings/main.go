package main

import (
	"fmt"
	"os"

	"movieratings/internal/conf"
	"movieratings/internal/pkg/zaplog"
	"movieratings/internal/server"

	"github.com/go-kratos/kratos/v2"
	"github.com/go-kratos/kratos/v2/log"
	"github.com/go-kratos/kratos/v2/transport/grpc"
	"github.com/go-kratos/kratos/v2/transport/http"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	_ "go.uber.org/automaxprocs"
)

// go build -ldflags "-X main.Version=x.y.z"
var (
	// Name is the name of the compiled software.
	Name = "movieratings"
	// Version is the version of the compiled software.
	Version = "dev"
	// flagconf is the config flag.
	flagconf string

	id = serviceID()
)

func serviceID() string {
	if host, err := os.Hostname(); err == nil && host != "" {
		return host + "-" + uuid.NewString()[:8]
	}
	return uuid.NewString()
}

var rootCmd = &cobra.Command{
	Use:           Name,
	Short:         "Movie list with per-client ratings and OMDb enrichment",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&flagconf, "conf", "c", "../../configs", "config path, eg: --conf config.yaml")
	rootCmd.AddCommand(serveCmd, migrateCmd, versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", Name, Version)
	},
}

func newApp(logger log.Logger, hs *http.Server, gs *grpc.Server) *kratos.App {
	return kratos.New(
		kratos.ID(id),
		kratos.Name(Name),
		kratos.Version(Version),
		kratos.Metadata(map[string]string{}),
		kratos.Logger(logger),
		kratos.Server(
			hs,
			gs,
		),
	)
}

// bootstrap loads the config and builds the process logger.
func bootstrap() (*conf.Bootstrap, log.Logger, func(), error) {
	bc, closeConf, err := conf.Load(flagconf)
	if err != nil {
		return nil, nil, nil, err
	}
	zl, err := zaplog.NewProduction(bc.Log.Level, bc.Log.Development)
	if err != nil {
		closeConf()
		return nil, nil, nil, err
	}
	logger := log.With(zl,
		"ts", log.DefaultTimestamp,
		"caller", log.DefaultCaller,
		"service.id", id,
		"service.name", Name,
		"service.version", Version,
		"request.id", server.RequestID(),
	)
	cleanup := func() {
		_ = zl.Sync()
		closeConf()
	}
	return bc, logger, cleanup, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
