package serve

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	api "github.com/ValentinKolb/dCtx/api/http"
	cmdUtil "github.com/ValentinKolb/dCtx/cmd/util"
	"github.com/ValentinKolb/dCtx/lib/common"
	"github.com/ValentinKolb/dCtx/lib/ctxstore"
	"github.com/ValentinKolb/dCtx/lib/ctxstore/mstore"
	"github.com/ValentinKolb/dCtx/lib/ctxstore/rstore"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger(common.LoggerCmd)

var (
	ServeCmd = &cobra.Command{
		Use:     "serve",
		Short:   "Start the dCtx HTTP API",
		Long:    `Start the HTTP API in front of the context store. The configuration can be set via command line flags or environment variables. The format of the environment variables is DCTX_<flag> (e.g. DCTX_REDIS_HOST=redis)`,
		PreRunE: processConfig,
		RunE:    run,
	}
)

func init() {
	// add flags
	cmdUtil.SetupStoreFlags(ServeCmd)

	key := "endpoint"
	ServeCmd.PersistentFlags().String(key, "0.0.0.0:8080", cmdUtil.WrapString("The address on which the API will listen (e.g. localhost:8080)"))

	key = "backend"
	ServeCmd.PersistentFlags().String(key, "redis", cmdUtil.WrapString("Where scopes are kept (redis, memory). The memory backend is lost on shutdown and meant for local development"))

	key = "log-requests"
	ServeCmd.PersistentFlags().Bool(key, false, cmdUtil.WrapString("Log every request at debug level"))
}

// processConfig binds the flags to viper and validates them
func processConfig(cmd *cobra.Command, _ []string) error {
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}

	switch backend := viper.GetString("backend"); backend {
	case "redis", "memory":
		return nil
	default:
		return fmt.Errorf("invalid backend: %s (expected one of: redis, memory)", backend)
	}
}

// newStore creates the configured store implementation
func newStore() (ctxstore.IContextStore, error) {
	c, err := cmdUtil.GetCodec()
	if err != nil {
		return nil, err
	}

	config := cmdUtil.GetStoreConfig()
	if viper.GetString("backend") == "memory" {
		return mstore.NewMemoryStore(mstore.NewBackend(), config, c), nil
	}
	return rstore.NewRedisStore(config, c), nil
}

func run(cmd *cobra.Command, _ []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	store, err := newStore()
	if err != nil {
		return err
	}

	config := cmdUtil.GetStoreConfig()
	Logger.Infof("starting with %s backend\n%s", viper.GetString("backend"), config.String())

	if err := store.Open(ctx); err != nil {
		return err
	}

	serveErr := api.ListenAndServe(ctx, viper.GetString("endpoint"), api.NewServer(store, viper.GetBool("log-requests")))

	// wait for pending deletions before disconnecting
	closeCtx, cancel := config.WithTimeout(context.Background())
	defer cancel()
	if err := store.Close(closeCtx); err != nil {
		Logger.Errorf("failed to close store: %v", err)
	}

	return serveErr
}
