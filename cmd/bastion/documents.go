package main

import (
	"context"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/bastion/internal/app"
	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

var (
	whereJSON string
)

// readArg parses a JSON document given inline, as "-" for stdin, or absent.
func readArg(args []string, i int) (schema.Document, error) {
	if len(args) <= i {
		return schema.Document{}, nil
	}
	if args[i] == "-" {
		return app.ReadDocument(os.Stdin)
	}
	return app.ReadDocument(strings.NewReader(args[i]))
}

func output(v any) error {
	return app.WriteJSON(os.Stdout, v)
}

var insertCmd = &cobra.Command{
	Use:   "insert [json|-]",
	Short: "Validate and insert a document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readArg(args, 0)
		if err != nil {
			return err
		}
		return withCollection(cmd, func(ctx context.Context, c *store.Collection) error {
			stored, err := c.Insert(ctx, doc)
			if err != nil {
				return err
			}
			return output(stored)
		})
	},
}

var findCmd = &cobra.Command{
	Use:   "find [query-json]",
	Short: "List documents matching an equality query",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := readArg(args, 0)
		if err != nil {
			return err
		}
		return withCollection(cmd, func(ctx context.Context, c *store.Collection) error {
			docs, err := c.Find(ctx, store.Query(q))
			if err != nil {
				return err
			}
			if docs == nil {
				docs = []schema.Document{}
			}
			return output(docs)
		})
	},
}

var getCmd = &cobra.Command{
	Use:   "get <id>",
	Short: "Fetch a document by identifier",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCollection(cmd, func(ctx context.Context, c *store.Collection) error {
			doc, err := c.FindByID(ctx, args[0])
			if err != nil {
				return err
			}
			return output(doc)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <id> <patch-json|->",
	Short: "Validate a patch and set its fields on a document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		patch, err := readArg(args, 1)
		if err != nil {
			return err
		}
		where, err := app.ParseDocument([]byte(whereJSON))
		if err != nil {
			return err
		}
		return withCollection(cmd, func(ctx context.Context, c *store.Collection) error {
			doc, err := c.UpdateWhere(ctx, args[0], store.Query(where), patch)
			if err != nil {
				return err
			}
			return output(doc)
		})
	},
}

var removeCmd = &cobra.Command{
	Use:   "remove [id]",
	Short: "Remove a document, or every document matching --where",
	Long: `Remove runs the collection's pre-remove hooks and deletes the document.
Without an id, every document matching --where is removed concurrently; an
empty --where removes the whole collection.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		where, err := app.ParseDocument([]byte(whereJSON))
		if err != nil {
			return err
		}
		return withCollection(cmd, func(ctx context.Context, c *store.Collection) error {
			if len(args) == 1 {
				doc, err := c.RemoveByID(ctx, args[0])
				if err != nil {
					return err
				}
				return output(doc)
			}

			removed, err := c.Remove(ctx, store.Query(where))
			if removed == nil {
				removed = []schema.Document{}
			}
			if outErr := output(removed); outErr != nil {
				return outErr
			}
			return err
		})
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count the documents of the collection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withCollection(cmd, func(ctx context.Context, c *store.Collection) error {
			n, err := c.Count(ctx)
			if err != nil {
				return err
			}
			return output(n)
		})
	},
}

func init() {
	rootCmd.AddCommand(insertCmd, findCmd, getCmd, updateCmd, removeCmd, countCmd)
	updateCmd.Flags().StringVar(&whereJSON, "where", "", "Extra equality condition the document must match")
	removeCmd.Flags().StringVar(&whereJSON, "where", "", "Equality query selecting the documents to remove")
}
