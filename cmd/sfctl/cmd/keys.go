package cmd

import (
	"context"
	"fmt"
	"sort"
	"strings"

	sfapi "github.com/Sakib25800/framer-salesforce-api"
	"github.com/Sakib25800/framer-salesforce-api/cache"
	"github.com/spf13/cobra"
)

// namespaces maps the names accepted by "keys" to a store's ListKeys.
func namespaces(stores *sfapi.Stores) map[string]func(context.Context, cache.Params) ([]string, error) {
	return map[string]func(context.Context, cache.Params) ([]string, error){
		"handoffs":    stores.PendingHandoffs.ListKeys,
		"results":     stores.PendingResults.ListKeys,
		"credentials": stores.Credentials.ListKeys,
		"webforms":    stores.WebForms.ListKeys,
		"userforms":   stores.UserForms.ListKeys,
	}
}

func newKeysCmd(get appFunc, printer printFunc) *cobra.Command {
	return &cobra.Command{
		Use:   "keys <namespace>",
		Short: "List the live keys of a store namespace",
		Long: `List the live keys of a store namespace. Namespaces:
handoffs, results, credentials, webforms, userforms.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			all := namespaces(get().stores)

			list, ok := all[args[0]]
			if !ok {
				names := make([]string, 0, len(all))
				for name := range all {
					names = append(names, name)
				}
				sort.Strings(names)

				return fmt.Errorf("unknown namespace %q (one of %s)", args[0], strings.Join(names, ", "))
			}

			keys, err := list(cmd.Context(), cache.Params{})
			if err != nil {
				return err
			}
			if keys == nil {
				keys = []string{}
			}

			return printer(cmd, keys)
		},
	}
}
