package ctx

import (
	"github.com/ValentinKolb/dCtx/cmd/util"
	"github.com/ValentinKolb/dCtx/lib/common"
	"github.com/ValentinKolb/dCtx/lib/ctxstore/rstore"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
)

var Logger = logger.GetLogger(common.LoggerCmd)

var (
	store *rstore.Store

	// ContextCommands represents the context command group
	ContextCommands = &cobra.Command{
		Use:                "ctx",
		Short:              "Perform context store operations",
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: closeStore,
	}
)

func init() {
	// Add store flags to the ctx command
	util.SetupStoreFlags(ContextCommands)

	// Add subcommands
	ContextCommands.AddCommand(getCmd)
	ContextCommands.AddCommand(setCmd)
	ContextCommands.AddCommand(unsetCmd)
	ContextCommands.AddCommand(keysCmd)
	ContextCommands.AddCommand(delCmd)
	ContextCommands.AddCommand(cleanCmd)
	ContextCommands.AddCommand(perfTestCmd)
}

// setupStore connects to the Redis server
func setupStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	c, err := util.GetCodec()
	if err != nil {
		return err
	}

	config := util.GetStoreConfig()
	store = rstore.NewRedisStore(config, c)

	Logger.Debugf("connecting with config\n%s", config.String())
	return store.Open(cmd.Context())
}

// closeStore waits for pending fire-and-forget operations and disconnects
func closeStore(cmd *cobra.Command, _ []string) error {
	if store == nil {
		return nil
	}
	config := store.Config()
	ctx, cancel := config.WithTimeout(cmd.Context())
	defer cancel()
	return store.Close(ctx)
}
