package kv

import (
	"fmt"

	"github.com/flashkv/fKV/lib/device"
	"github.com/flashkv/fKV/lib/kv"
	"github.com/flashkv/fKV/lib/store"
	"github.com/spf13/cobra"
)

// withValue allocates an aligned value buffer for a command and releases
// it when the command returns.
func withValue(size int, fn func(v *kv.Value) error) error {
	v, err := kv.NewValue(size)
	if err != nil {
		return err
	}
	defer v.Release()
	return fn(v)
}

var (
	putCmd = &cobra.Command{
		Use:   "put [key] [value]",
		Short: "Writes the value for a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := kv.KeyFromString(args[0])
			payload := []byte(args[1])

			expiry, _ := cmd.Flags().GetUint32("expiry")
			gen, _ := cmd.Flags().GetUint32("gen")

			return withValue(len(payload), func(v *kv.Value) error {
				if err := v.SetBytes(payload); err != nil {
					return err
				}
				n, err := kvPool.Put(key, v, kv.WriteOptions{Expiry: expiry, GenCount: gen})
				if err != nil {
					return err
				}
				fmt.Printf("put %d bytes (gen=%d)\n", n, v.Info.GenCount)
				return nil
			})
		},
	}
	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the value for a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key := kv.KeyFromString(args[0])
			return withValue(device.MaxValueSize, func(v *kv.Value) error {
				n, err := kvPool.Get(key, v)
				if err != nil {
					if store.IsNotFound(err) {
						fmt.Printf("key=%s, found=false\n", args[0])
						return nil
					}
					return err
				}
				fmt.Printf("key=%s, found=true, len=%d, gen=%d, value=%s\n",
					args[0], n, v.Info.GenCount, v.Bytes())
				return nil
			})
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key]",
		Short: "Deletes a key value pair",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvPool.Delete(kv.KeyFromString(args[0])); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	hasCmd = &cobra.Command{
		Use:   "has [key]",
		Short: "Checks if a key exists",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var info kv.KeyValueInfo
			found, err := kvPool.ExistsInfo(kv.KeyFromString(args[0]), &info)
			if err != nil {
				return err
			}
			if found {
				fmt.Printf("key=%s, found=true, len=%d, gen=%d, expiry=%d\n",
					args[0], info.ValueLen, info.GenCount, info.Expiry)
			} else {
				fmt.Printf("key=%s, found=false\n", args[0])
			}
			return nil
		},
	}
	lenCmd = &cobra.Command{
		Use:   "len [key]",
		Short: "Prints the sector-rounded length of a stored value",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			length, err := kvPool.ValueLen(kv.KeyFromString(args[0]))
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, len=%d\n", args[0], length)
			return nil
		},
	}
	infoCmd = &cobra.Command{
		Use:   "info",
		Short: "Prints store-wide metadata",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			info, err := kvStore.Info()
			if err != nil {
				return err
			}
			fmt.Printf("store %s (%s)\n", kvStore.Path(), kvConf.Engine)
			fmt.Printf("  version:     %d\n", info.Version)
			fmt.Printf("  pools:       %d/%d\n", info.NumPools, info.MaxPools)
			fmt.Printf("  expiry mode: %s\n", info.ExpiryMode)
			fmt.Printf("  keys:        %d\n", info.NumKeys)
			fmt.Printf("  free space:  %d bytes\n", info.FreeSpace)
			return nil
		},
	}
	poolsCmd = &cobra.Command{
		Use:   "pools",
		Short: "Lists the store's pools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			pools, err := kvStore.Pools()
			if err != nil {
				return err
			}
			for _, p := range pools {
				fmt.Printf("%4d  %s\n", p.ID, p.Tag)
			}
			return nil
		},
	}
	poolDeleteCmd = &cobra.Command{
		Use:   "pool-del [tag]",
		Short: "Deletes a pool (reclamation is asynchronous)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pool, err := kvStore.GetOrCreatePool(args[0])
			if err != nil {
				return err
			}
			if err := kvStore.DeletePool(pool); err != nil {
				return err
			}
			fmt.Printf("pool %q deleted (id %d); the device reclaims it asynchronously\n", args[0], pool.ID())
			return nil
		},
	}
	dumpCmd = &cobra.Command{
		Use:   "dump",
		Short: "Iterates the pool and prints every entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			count := 0
			err := kvPool.ForEach(func(key kv.Key, value *kv.Value) error {
				fmt.Printf("%s = %s (len=%d gen=%d)\n",
					key.Data(), value.Bytes(), value.Len, value.Info.GenCount)
				count++
				return nil
			})
			if err != nil {
				return err
			}
			fmt.Printf("%d entries\n", count)
			return nil
		},
	}
	clearCmd = &cobra.Command{
		Use:   "clear",
		Short: "Removes every key/value pair from every pool, keeping pool identities",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := kvStore.DeleteAll(); err != nil {
				return err
			}
			fmt.Println("store cleared")
			return nil
		},
	}
	destroyCmd = &cobra.Command{
		Use:   "destroy",
		Short: "Irreversibly erases the whole store. There is no undo",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			force, _ := cmd.Flags().GetBool("yes")
			if !force {
				return fmt.Errorf("destroy erases all data on %s; re-run with --yes to confirm", kvStore.Path())
			}
			if err := kvStore.Destroy(); err != nil {
				return err
			}
			fmt.Println("store destroyed")
			return nil
		},
	}
)

func init() {
	putCmd.Flags().Uint32("expiry", 0, "Expiry in seconds (arbitrary expiry mode only)")
	putCmd.Flags().Uint32("gen", 0, "Generation count for optimistic concurrency")
	destroyCmd.Flags().Bool("yes", false, "Confirm the destructive erase")
}
