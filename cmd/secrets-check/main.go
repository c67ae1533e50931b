// secrets-check valida un archivo de secrets contra los proveedores
// registrados sin tocar la red.
package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jxmono/login-providers/internal/provider"
	"github.com/jxmono/login-providers/internal/provider/bitbucket"
	"github.com/jxmono/login-providers/internal/provider/github"
	"github.com/jxmono/login-providers/internal/secrets"
)

func newRegistry() *provider.Registry {
	registry := provider.NewRegistry()
	registry.Register(github.ProviderName, github.Factory)
	registry.Register(bitbucket.ProviderName, bitbucket.Factory)
	return registry
}

func main() {
	root := &cobra.Command{
		Use:   "secrets-check",
		Short: "Herramientas para el archivo de secrets de login",
	}

	var file string
	checkCmd := &cobra.Command{
		Use:   "check",
		Short: "Valida cada entrada del archivo contra su proveedor",
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return fmt.Errorf("falta el archivo (flag --file)")
			}
			loaded, err := secrets.NewLoader().Load(file)
			if err != nil {
				return err
			}

			registry := newRegistry()
			names := make([]string, 0, len(loaded))
			for name := range loaded {
				names = append(names, name)
			}
			sort.Strings(names)

			failed := 0
			for _, name := range names {
				if _, err := registry.New(name, loaded[name]); err != nil {
					failed++
					fmt.Printf("%-12s FAIL  %v\n", name, err)
					continue
				}
				fmt.Printf("%-12s OK\n", name)
			}
			if failed > 0 {
				return fmt.Errorf("%d entrada(s) inválida(s)", failed)
			}
			return nil
		},
	}
	checkCmd.Flags().StringVar(&file, "file", os.Getenv("SECRETS_FILE"), "Archivo de secrets YAML (env SECRETS_FILE)")

	providersCmd := &cobra.Command{
		Use:   "providers",
		Short: "Lista los proveedores registrados",
		Run: func(cmd *cobra.Command, args []string) {
			for _, name := range newRegistry().Names() {
				fmt.Println(name)
			}
		},
	}

	root.AddCommand(checkCmd, providersCmd)
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
