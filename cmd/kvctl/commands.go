package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

var (
	flushYes   bool
	flushEmpty bool

	getCmd = &cobra.Command{
		Use:   "get [key]",
		Short: "Reads the string value of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			value, ok, err := store.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Printf("key=%s, found=%v, value=%s\n", args[0], ok, value)
			return nil
		},
	}
	setCmd = &cobra.Command{
		Use:   "set [key] [value]",
		Short: "Sets the string value of a key",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Set(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("set successfully")
			return nil
		},
	}
	incrCmd = &cobra.Command{
		Use:   "incr [key] [delta]",
		Short: "Increments the number stored at key (delta defaults to 1)",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			delta := int64(1)
			if len(args) == 2 {
				d, err := strconv.ParseInt(args[1], 10, 64)
				if err != nil {
					return fmt.Errorf("delta must be an integer: %w", err)
				}
				delta = d
			}
			n, err := store.IncrBy(cmd.Context(), args[0], delta)
			if err != nil {
				return err
			}
			fmt.Println(strconv.FormatFloat(n, 'f', -1, 64))
			return nil
		},
	}
	delCmd = &cobra.Command{
		Use:   "del [key...]",
		Short: "Deletes keys",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.DeleteAll(cmd.Context(), args); err != nil {
				return err
			}
			fmt.Println("delete successfully")
			return nil
		},
	}
	existsCmd = &cobra.Command{
		Use:   "exists [key...]",
		Short: "Checks which keys exist",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			found, err := store.ExistsMany(cmd.Context(), args)
			if err != nil {
				return err
			}
			for i, key := range args {
				fmt.Printf("key=%s, exists=%v\n", key, found[i])
			}
			return nil
		},
	}
	typeCmd = &cobra.Command{
		Use:   "type [key]",
		Short: "Prints the kind held by a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			kind, ok, err := store.Type(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if !ok {
				fmt.Println("none")
				return nil
			}
			fmt.Println(kind)
			return nil
		},
	}
	renameCmd = &cobra.Command{
		Use:   "rename [key] [newkey]",
		Short: "Renames a key, replacing the destination",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Rename(cmd.Context(), args[0], args[1]); err != nil {
				return err
			}
			fmt.Println("rename successfully")
			return nil
		},
	}
	expireCmd = &cobra.Command{
		Use:   "expire [key] [seconds]",
		Short: "Sets a key to expire after the given number of seconds",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			seconds, err := strconv.ParseInt(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("seconds must be a number: %w", err)
			}
			if err := store.Expire(cmd.Context(), args[0], seconds); err != nil {
				return err
			}
			fmt.Println("expire successfully")
			return nil
		},
	}
	ttlCmd = &cobra.Command{
		Use:   "ttl [key]",
		Short: "Prints the remaining time to live of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ttl, ok, err := store.TTL(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			switch {
			case !ok:
				fmt.Println("-2")
			case ttl < 0:
				fmt.Println("-1")
			default:
				fmt.Printf("%dms (%s)\n", ttl.Milliseconds(), ttl)
			}
			return nil
		},
	}
	persistCmd = &cobra.Command{
		Use:   "persist [key]",
		Short: "Removes the expiry of a key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := store.Persist(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Println("persist successfully")
			return nil
		},
	}
	flushCmd = &cobra.Command{
		Use:   "flush",
		Short: "Removes every key (requires --yes)",
		Long: `Removes every key. By default the schema is dropped and recreated;
--empty deletes all entries and keeps the schema.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if !flushYes {
				return fmt.Errorf("refusing to flush without --yes")
			}
			if flushEmpty {
				if err := store.EmptyAll(cmd.Context()); err != nil {
					return err
				}
			} else if err := store.FlushAll(cmd.Context()); err != nil {
				return err
			}
			fmt.Println("flush successfully")
			return nil
		},
	}
)

func init() {
	flushCmd.Flags().BoolVar(&flushYes, "yes", false, "confirm that all keys should be removed")
	flushCmd.Flags().BoolVar(&flushEmpty, "empty", false, "delete entries but keep the schema")
}
