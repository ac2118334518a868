/*
 * Author: Markus Stenberg <fingon@iki.fi>
 *
 * Copyright (c) 2019 Markus Stenberg
 *
 * Created:       Wed Mar 27 11:50:12 2019 mstenber
 * Last modified: Wed Mar 27 14:02:19 2019 mstenber
 * Edit time:     47 min
 *
 */

// logtrie is a command line interface to a store: named key/value
// tries on a log.
package main

import (
	"bufio"
	"bytes"
	"fmt"
	"log"
	"os"

	"github.com/fingon/go-logtrie/patricia"
	"github.com/fingon/go-logtrie/store"
	"github.com/pkg/errors"
	"github.com/urfave/cli"
)

func withStore(cb func(ctx *cli.Context, s *store.Store) error) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		config, err := loadConfig(ctx)
		if err != nil {
			return err
		}
		s, err := store.Open(config)
		if err != nil {
			return err
		}
		err = cb(ctx, s)
		err2 := s.Close()
		if err == nil {
			err = err2
		}
		return err
	}
}

func requireArgs(ctx *cli.Context, min, max int) error {
	if ctx.NArg() < min || ctx.NArg() > max {
		return cli.NewExitError(fmt.Sprintf("usage: %s %s %s",
			ctx.App.Name, ctx.Command.Name, ctx.Command.ArgsUsage), 2)
	}
	return nil
}

func put(ctx *cli.Context, s *store.Store) error {
	if err := requireArgs(ctx, 3, 3); err != nil {
		return err
	}
	return s.Update(func(tx *store.Transaction) error {
		st, err := tx.OpenStore(ctx.Args().Get(0), ctx.Bool(dupsFlag.Name))
		if err != nil {
			return err
		}
		st.Put([]byte(ctx.Args().Get(1)), []byte(ctx.Args().Get(2)))
		return nil
	})
}

// load reads tab separated key value lines from stdin. Sorted input
// takes the fast append path.
func load(ctx *cli.Context, s *store.Store) error {
	if err := requireArgs(ctx, 1, 1); err != nil {
		return err
	}
	return s.Update(func(tx *store.Transaction) error {
		st, err := tx.OpenStore(ctx.Args().Get(0), ctx.Bool(dupsFlag.Name))
		if err != nil {
			return err
		}
		sc := bufio.NewScanner(os.Stdin)
		n := 0
		for sc.Scan() {
			line := sc.Bytes()
			i := bytes.IndexByte(line, '\t')
			if i < 0 {
				return errors.Errorf("line %d: no tab", n+1)
			}
			key, value := line[:i], line[i+1:]
			err = st.PutRight(key, value)
			if err == patricia.ErrOrderViolation {
				st.Put(key, value)
			} else if err != nil {
				return err
			}
			n++
		}
		fmt.Printf("%d lines\n", n)
		return sc.Err()
	})
}

func get(ctx *cli.Context, s *store.Store) error {
	if err := requireArgs(ctx, 2, 2); err != nil {
		return err
	}
	return s.View(func(tx *store.ReadTransaction) error {
		st, err := tx.Store(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		c := st.OpenCursor()
		defer c.Close()
		v := c.SearchKey([]byte(ctx.Args().Get(1)))
		if v == nil {
			return cli.NewExitError("not found", 1)
		}
		fmt.Printf("%s\n", v)
		for c.NextDup() {
			fmt.Printf("%s\n", c.Value())
		}
		return nil
	})
}

func del(ctx *cli.Context, s *store.Store) error {
	if err := requireArgs(ctx, 2, 3); err != nil {
		return err
	}
	return s.Update(func(tx *store.Transaction) error {
		st, err := tx.Store(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		key := []byte(ctx.Args().Get(1))
		var ok bool
		if ctx.NArg() == 3 {
			ok = st.DeletePair(key, []byte(ctx.Args().Get(2)))
		} else {
			ok = st.Delete(key)
		}
		if !ok {
			return cli.NewExitError("not found", 1)
		}
		return nil
	})
}

func scan(ctx *cli.Context, s *store.Store) error {
	if err := requireArgs(ctx, 1, 2); err != nil {
		return err
	}
	prefix := []byte(ctx.Args().Get(1))
	return s.View(func(tx *store.ReadTransaction) error {
		st, err := tx.Store(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		c := st.OpenCursor()
		defer c.Close()
		ok := c.SearchKeyRange(prefix) != nil
		for ; ok && bytes.HasPrefix(c.Key(), prefix); ok = c.Next() {
			fmt.Printf("%s\t%s\n", c.Key(), c.Value())
		}
		return nil
	})
}

func drop(ctx *cli.Context, s *store.Store) error {
	if err := requireArgs(ctx, 1, 1); err != nil {
		return err
	}
	return s.Update(func(tx *store.Transaction) error {
		return tx.DeleteStore(ctx.Args().Get(0))
	})
}

func names(ctx *cli.Context, s *store.Store) error {
	for _, name := range s.Names() {
		fmt.Println(name)
	}
	return nil
}

func clean(ctx *cli.Context, s *store.Store) error {
	n, err := s.Clean()
	if err != nil {
		return err
	}
	fmt.Printf("removed %d files\n", n)
	return nil
}

func check(ctx *cli.Context, s *store.Store) error {
	err := s.Check()
	if err != nil {
		return err
	}
	fmt.Println("ok")
	if ctx.Bool("verbose") {
		return s.Dump(os.Stdout)
	}
	return nil
}

func stats(ctx *cli.Context, s *store.Store) error {
	st, err := s.Stats()
	if err != nil {
		return err
	}
	fmt.Printf("generation:  %d\n", st.Generation)
	fmt.Printf("stores:      %d\n", st.Stores)
	fmt.Printf("files:       %d\n", st.Files)
	fmt.Printf("high:        %x\n", st.HighAddress)
	fmt.Printf("bytes:       %d\n", st.Bytes)
	fmt.Printf("expired:     %d\n", st.ExpiredBytes)
	return nil
}

func main() {
	app := cli.NewApp()
	app.Name = "logtrie"
	app.Usage = "key/value tries on an append-only log"
	app.Flags = globalFlags
	app.Commands = []cli.Command{
		{Name: "put", Usage: "Set value of a key", ArgsUsage: "STORE KEY VALUE",
			Flags: []cli.Flag{dupsFlag}, Action: withStore(put)},
		{Name: "load", Usage: "Add tab separated pairs from stdin", ArgsUsage: "STORE",
			Flags: []cli.Flag{dupsFlag}, Action: withStore(load)},
		{Name: "get", Usage: "Show values of a key", ArgsUsage: "STORE KEY",
			Action: withStore(get)},
		{Name: "delete", Usage: "Delete a key (or a single pair)", ArgsUsage: "STORE KEY [VALUE]",
			Action: withStore(del)},
		{Name: "scan", Usage: "Show pairs with the given key prefix", ArgsUsage: "STORE [PREFIX]",
			Action: withStore(scan)},
		{Name: "drop", Usage: "Delete a store", ArgsUsage: "STORE",
			Action: withStore(drop)},
		{Name: "names", Usage: "List the stores", Action: withStore(names)},
		{Name: "clean", Usage: "Remove mostly expired log files", Action: withStore(clean)},
		{Name: "check", Usage: "Verify the stores", Flags: []cli.Flag{verboseFlag},
			Action: withStore(check)},
		{Name: "stats", Usage: "Show statistics", Action: withStore(stats)},
	}
	err := app.Run(os.Args)
	if err != nil {
		log.Fatal(err)
	}
}
