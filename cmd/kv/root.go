package kv

import (
	"github.com/flashkv/fKV/cmd/util"
	"github.com/flashkv/fKV/lib/store"
	"github.com/spf13/cobra"
)

var (
	kvStore *store.Store
	kvPool  *store.Pool
	kvConf  *util.StoreConfig

	// KeyValueCommands represents the KV command group
	KeyValueCommands = &cobra.Command{
		Use:                "kv",
		Short:              "Perform key-value store operations",
		PersistentPreRunE:  setupStore,
		PersistentPostRunE: teardownStore,
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add the common store connection flags to the KV command
	util.SetupStoreFlags(KeyValueCommands)

	// Add subcommands
	KeyValueCommands.AddCommand(putCmd)
	KeyValueCommands.AddCommand(getCmd)
	KeyValueCommands.AddCommand(delCmd)
	KeyValueCommands.AddCommand(hasCmd)
	KeyValueCommands.AddCommand(lenCmd)
	KeyValueCommands.AddCommand(infoCmd)
	KeyValueCommands.AddCommand(poolsCmd)
	KeyValueCommands.AddCommand(poolDeleteCmd)
	KeyValueCommands.AddCommand(dumpCmd)
	KeyValueCommands.AddCommand(clearCmd)
	KeyValueCommands.AddCommand(destroyCmd)
	KeyValueCommands.AddCommand(perfTestCmd)
}

// setupStore opens the configured store and resolves the target pool
func setupStore(cmd *cobra.Command, _ []string) error {
	// Bind command flags to viper
	if err := util.BindCommandFlags(cmd); err != nil {
		return err
	}

	conf, err := util.GetStoreConfig()
	if err != nil {
		return err
	}
	kvConf = conf

	engine, err := util.GetEngine(conf)
	if err != nil {
		return err
	}

	kvStore, err = store.Open(engine, conf.Path, conf.Options)
	if err != nil {
		return err
	}

	if conf.Pool == "" {
		kvPool = kvStore.DefaultPool()
		return nil
	}
	kvPool, err = kvStore.GetOrCreatePool(conf.Pool)
	if err != nil {
		_ = kvStore.Close()
		return err
	}
	return nil
}

// teardownStore closes the store after the command ran
func teardownStore(_ *cobra.Command, _ []string) error {
	if kvStore == nil {
		return nil
	}
	return kvStore.Close()
}
