package main

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/staffimport/internal/core"
)

func newEntityCmd(root *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "entity",
		Short: "Manage entities",
	}
	cmd.AddCommand(newEntityCreateCmd(root))
	return cmd
}

func newEntityCreateCmd(root *rootOptions) *cobra.Command {
	var (
		id           string
		name         string
		contractType string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an entity to import employees into",
		RunE: func(cmd *cobra.Command, args []string) error {
			e := core.Entity{Name: strings.TrimSpace(name), ContractType: contractType}
			if id != "" {
				parsed, err := uuid.Parse(strings.TrimSpace(id))
				if err != nil {
					return withCode(exitUsage, fmt.Errorf("invalid --id: %w", err))
				}
				e.ID = parsed
			}
			if e.Name == "" {
				return withCode(exitUsage, fmt.Errorf("--name must not be empty"))
			}
			switch contractType {
			case core.ContractTypeCorporate, core.ContractTypeAgency:
			default:
				return withCode(exitUsage, fmt.Errorf("invalid --contract-type %q: must be corporate or agency", contractType))
			}

			repo, err := openPostgres(cmd.Context(), root)
			if err != nil {
				return err
			}
			defer repo.Close()

			created, err := repo.CreateEntity(cmd.Context(), e)
			if err != nil {
				return withCode(exitDB, err)
			}
			return writeJSONLine(cmd.OutOrStdout(), created)
		},
	}

	cmd.Flags().StringVar(&id, "id", "", "Entity UUID (default: generated)")
	cmd.Flags().StringVar(&name, "name", "", "Entity name (required)")
	cmd.Flags().StringVar(&contractType, "contract-type", core.ContractTypeCorporate, "corporate or agency")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
