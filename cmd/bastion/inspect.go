package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/jacentio/bastion/schema"
	"github.com/jacentio/bastion/store"
)

var (
	validateUpdate bool
)

var existsCmd = &cobra.Command{
	Use:   "exists",
	Short: "Report whether the collection exists in the backend",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		if collection == "" {
			return errNoCollection
		}
		return withBackend(cmd, func(ctx context.Context, backend store.Backend, _ *store.Registry) error {
			ok, err := store.Exists(ctx, backend, collection)
			if err != nil {
				return err
			}
			return output(ok)
		})
	},
}

var validateCmd = &cobra.Command{
	Use:   "validate [json|-]",
	Short: "Check a document against the collection model without storing it",
	Long: `Validate prints the normalized document (defaults applied on insert) or
the first field that fails the model. Nothing is written to the store.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		doc, err := readArg(args, 0)
		if err != nil {
			return err
		}
		return withCollection(cmd, func(ctx context.Context, c *store.Collection) error {
			if c.Model() == nil {
				fmt.Fprintf(os.Stderr, "collection %q has no model; every document is accepted\n", c.Name())
			}
			if err := schema.Explain(c.Model(), doc, !validateUpdate); err != nil {
				return fmt.Errorf("%w: %v", store.ErrInvalidDocument, err)
			}
			normalized, _ := schema.Validate(c.Model(), doc, !validateUpdate)
			return output(normalized)
		})
	},
}

func init() {
	rootCmd.AddCommand(existsCmd, validateCmd)
	validateCmd.Flags().BoolVar(&validateUpdate, "update", false, "Validate as an update patch (no required fields, no defaults)")
}
