package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gravitas-games/gridstash/pkg/inventory"
	"github.com/spf13/cobra"
)

func newRootCmd(c *console) *cobra.Command {
	root := &cobra.Command{
		Use:           "invctl",
		Short:         "Inspect and drive a grid inventory",
		SilenceUsage:  true,
		SilenceErrors: false,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.open(cmd.Context())
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return c.save(cmd.Context())
		},
	}
	root.SetOut(c.out)
	root.SetErr(c.out)

	pf := root.PersistentFlags()
	pf.StringVar(&c.dbPath, "db", c.dbPath, "SQLite file holding the inventory (in-memory when empty)")
	pf.StringVar(&c.catalogPath, "catalog", c.catalogPath, "items YAML file (built-in sample catalog when empty)")
	pf.StringVar(&c.owner, "owner", c.owner, "inventory owner")
	pf.BoolVarP(&c.verbose, "verbose", "v", c.verbose, "log rejected intents")

	root.AddCommand(
		&cobra.Command{
			Use:   "setup W H [MULT] [EDITABLE]",
			Short: "Append a pocket of the given size",
			Args:  cobra.RangeArgs(2, 4),
			RunE: func(cmd *cobra.Command, args []string) error {
				meta := inventory.ContainerMeta{PerishMultiplier: 1, FiltersEditable: true}
				var err error
				if meta.Grid.W, err = atoi(args[0]); err != nil {
					return err
				}
				if meta.Grid.H, err = atoi(args[1]); err != nil {
					return err
				}
				if len(args) > 2 {
					if meta.PerishMultiplier, err = strconv.ParseFloat(args[2], 64); err != nil {
						return fmt.Errorf("bad multiplier %q", args[2])
					}
				}
				if len(args) > 3 {
					if meta.FiltersEditable, err = strconv.ParseBool(args[3]); err != nil {
						return fmt.Errorf("bad editable flag %q", args[3])
					}
				}
				id := c.inv.AddPocket(meta)
				c.printf("%s ready %dx%d mult=%.2f\n", id, meta.Grid.W, meta.Grid.H, meta.PerishMultiplier)
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "pocket ITEM",
			Short: "Append a pocket shaped by an item",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				item, err := c.item(args[0])
				if err != nil {
					return err
				}
				id, err := c.inv.AddPocketFromItem(item)
				if err != nil {
					return err
				}
				c.printf("%s ready\n", id)
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "add ITEM|REGISTRY_ID [COUNT]",
			Short: "Add units, pockets first",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				count := 1
				if len(args) > 1 {
					n, err := atoi(args[1])
					if err != nil {
						return err
					}
					count = n
				}
				item, err := c.item(args[0])
				if err != nil {
					return err
				}
				res, err := c.inv.AddItemAuto(item, count)
				if err != nil {
					return err
				}
				c.printf("placed %d remaining %d\n", res.Placed, res.Remaining)
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "catalog",
			Short: "List catalog items by registry id",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				for _, d := range c.cat.Export() {
					c.printf("%3d %-14s %dx%d stack %d", d.NumericID, d.ID, d.Footprint.W, d.Footprint.H, d.StackLimit())
					if d.CanPerish() {
						c.printf(" perish %gs", d.PerishSeconds)
					}
					c.printf("\n")
				}
				return nil
			},
		},
		&cobra.Command{
			Use:   "arrange",
			Short: "Repack every container",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c.inv.AutoArrangeAll()
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "mergeall",
			Short: "Consolidate stacks in every container",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c.inv.MergeAll()
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "setfilters POCKET OPS",
			Short: `Edit pocket filters with ops like "+food,-ammo"`,
			Args:  cobra.MinimumNArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				idx, err := atoi(args[0])
				if err != nil {
					return err
				}
				if err := c.inv.ApplyFilterOps(idx, strings.Join(args[1:], " ")); err != nil {
					return err
				}
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "summary",
			Short: "Print every container and entry",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c.printf("%s", c.inv.Summary())
				return nil
			},
		},
		&cobra.Command{
			Use:   "overlay CONTAINER",
			Short: "Draw a container grid (bp, p0, p1, ...)",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := inventory.ParseContainerID(args[0])
				if err != nil {
					return err
				}
				out, err := c.inv.Overlay(id)
				if err != nil {
					return err
				}
				c.printf("%s", out)
				return nil
			},
		},
		&cobra.Command{
			Use:   "guid CONTAINER INDEX",
			Short: "Print the instance id of an entry",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, err := c.entry(args[0], args[1])
				if err != nil {
					return err
				}
				c.printf("%s\n", id)
				return nil
			},
		},
		&cobra.Command{
			Use:   "move FROM INDEX TO X Y ROTATE",
			Short: "Move an entry to an explicit position",
			Args:  cobra.ExactArgs(6),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.move(args[0], args[1], args[2], args[3:])
			},
		},
		&cobra.Command{
			Use:   "move-auto FROM INDEX TO",
			Short: "Move an entry, merging into stacks first",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.move(args[0], args[1], args[2], nil)
			},
		},
		&cobra.Command{
			Use:   "split CONTAINER INDEX AMOUNT",
			Short: "Split units off an entry",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				from, err := inventory.ParseContainerID(args[0])
				if err != nil {
					return err
				}
				id, err := c.entry(args[0], args[1])
				if err != nil {
					return err
				}
				amount, err := atoi(args[2])
				if err != nil {
					return err
				}
				newID, err := c.inv.SplitItem(from, id, amount)
				if err != nil {
					return err
				}
				c.printf("split %d into %s\n", amount, newID)
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "merge FROM INDEX TO INDEX",
			Short: "Merge the first entry into the second",
			Args:  cobra.ExactArgs(4),
			RunE: func(cmd *cobra.Command, args []string) error {
				source, err := c.entry(args[0], args[1])
				if err != nil {
					return err
				}
				target, err := c.entry(args[2], args[3])
				if err != nil {
					return err
				}
				if err := c.inv.MergeInstances(source, target); err != nil {
					return err
				}
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "expire-in CONTAINER INDEX SECONDS",
			Short: "Bring the next perish deadline of an entry forward",
			Args:  cobra.ExactArgs(3),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, idx, err := c.position(args[0], args[1])
				if err != nil {
					return err
				}
				secs, err := strconv.ParseFloat(args[2], 64)
				if err != nil {
					return fmt.Errorf("bad seconds %q", args[2])
				}
				if err := c.inv.ExpireIn(id, idx, secs); err != nil {
					return err
				}
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "expire-now CONTAINER INDEX",
			Short: "Make the next perish bucket of an entry due now",
			Args:  cobra.ExactArgs(2),
			RunE: func(cmd *cobra.Command, args []string) error {
				id, idx, err := c.position(args[0], args[1])
				if err != nil {
					return err
				}
				if err := c.inv.ExpireNow(id, idx); err != nil {
					return err
				}
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "heap",
			Short: "Show the perish schedule",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				size, next := c.inv.PerishQueue()
				c.printf("perish queue size=%d next=%d\n", size, next)
				return nil
			},
		},
		&cobra.Command{
			Use:   "tick",
			Short: "Process every perish deadline that is due",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				c.inv.Tick(time.Now())
				c.printDiff()
				return nil
			},
		},
		&cobra.Command{
			Use:   "validate",
			Short: "Check every container for overlaps and bad stacks",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				if err := c.inv.Validate(); err != nil {
					return err
				}
				c.printf("ok\n")
				return nil
			},
		},
		newRunCmd(c),
	)
	return root
}

// newRunCmd executes a script, one command per line. Blank lines and lines
// starting with # are skipped. A failing line is reported and the script
// continues.
func newRunCmd(c *console) *cobra.Command {
	return &cobra.Command{
		Use:   "run SCRIPT",
		Short: "Run console commands from a file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()

			failed := 0
			sc := bufio.NewScanner(f)
			for n := 1; sc.Scan(); n++ {
				line := strings.TrimSpace(sc.Text())
				if line == "" || strings.HasPrefix(line, "#") {
					continue
				}
				c.printf("> %s\n", line)
				sub := newRootCmd(c)
				sub.SetArgs(strings.Fields(line))
				sub.SilenceErrors = true
				if err := sub.ExecuteContext(cmd.Context()); err != nil {
					c.printf("line %d: %v\n", n, err)
					failed++
				}
			}
			if err := sc.Err(); err != nil {
				return err
			}
			if failed > 0 {
				return fmt.Errorf("%d command(s) failed", failed)
			}
			return nil
		},
	}
}

func (c *console) move(from, index, to string, explicit []string) error {
	fromID, err := inventory.ParseContainerID(from)
	if err != nil {
		return err
	}
	toID, err := inventory.ParseContainerID(to)
	if err != nil {
		return err
	}
	id, err := c.entry(from, index)
	if err != nil {
		return err
	}
	req := inventory.MoveRequest{Instance: id, From: fromID, To: toID}
	if explicit != nil {
		x, err := atoi(explicit[0])
		if err != nil {
			return err
		}
		y, err := atoi(explicit[1])
		if err != nil {
			return err
		}
		req.Position = &inventory.Point{X: x, Y: y}
		req.Rotate = explicit[2] == "1" || strings.EqualFold(explicit[2], "true")
	}
	if err := c.inv.MoveItem(req); err != nil {
		return err
	}
	c.printDiff()
	return nil
}

func (c *console) position(container, index string) (inventory.ContainerID, int, error) {
	id, err := inventory.ParseContainerID(container)
	if err != nil {
		return inventory.ContainerID{}, 0, err
	}
	idx, err := atoi(index)
	if err != nil {
		return inventory.ContainerID{}, 0, err
	}
	return id, idx, nil
}

func (c *console) entry(container, index string) (inventory.InstanceID, error) {
	id, idx, err := c.position(container, index)
	if err != nil {
		return "", err
	}
	return c.inv.InstanceAt(id, idx)
}

func atoi(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("bad number %q", s)
	}
	return n, nil
}
