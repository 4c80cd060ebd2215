// Package cli - командная строка whstats поверх общего пайплайна команд.
package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"whstats/internal/transports/common"
)

// Runtime - собранное приложение, с которым работает CLI.
type Runtime interface {
	Service() *common.Service
	Serve(ctx context.Context) error
	CommandTimeout() time.Duration
	Close() error
}

// Factory собирает Runtime по пути к конфигу.
type Factory func(ctx context.Context, configPath string) (Runtime, error)

// ErrCommandFailed - команда модуля вернула неуспешный ответ.
var ErrCommandFailed = errors.New("command failed")

type options struct {
	configPath string
	subject    string
	factory    Factory
}

// New создает корневую CLI-команду.
func New(version string, factory Factory) *cobra.Command {
	opts := &options{factory: factory}
	root := &cobra.Command{
		Use:           "whstats",
		Short:         "Агрегаты складской базы: дашборд, отчеты, история",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	root.PersistentFlags().StringVarP(&opts.configPath, "config", "c", os.Getenv("WHSTATS_CONFIG"), "путь к YAML-конфигу")
	root.PersistentFlags().StringVar(&opts.subject, "subject", defaultSubject(), "идентификатор субъекта для authz и аудита")

	root.AddCommand(newVersionCmd(version))
	root.AddCommand(newServeCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newSystemCmd(opts))
	root.AddCommand(newExecCmd(opts))
	root.AddCommand(newModulesCmd(opts))

	return root
}

func newVersionCmd(version string) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Показать версию",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s\n", version)
		},
	}
}

func newServeCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Запустить HTTP API и планировщик",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(rt Runtime) error {
				err := rt.Serve(cmd.Context())
				if errors.Is(err, context.Canceled) {
					return nil
				}
				return err
			})
		},
	}
}

func newStatsCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "stats <command> [key=value...]",
		Short: "Выполнить команду модуля stats",
		Example: "  whstats stats dashboard\n" +
			"  whstats stats trends period=week days=90\n" +
			"  whstats stats revenue-by-period period=day start=2024-01-01 end=2024-01-31",
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "stats", args[0], args[1:])
		},
	}
}

func newSystemCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:       "system <status|pool>",
		Short:     "Состояние узла и пула соединений",
		Args:      cobra.ExactArgs(1),
		ValidArgs: []string{"status", "pool"},
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.run(cmd, "system", args[0], nil)
		},
	}
}

func newExecCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   `exec "/module command [args...]"`,
		Short: "Выполнить текстовую команду",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(rt Runtime) error {
				ctx, cancel := context.WithTimeout(cmd.Context(), rt.CommandTimeout())
				defer cancel()
				resp, err := rt.Service().ExecuteText(ctx, opts.subject, strings.Join(args, " "))
				return printResponse(cmd, resp, err)
			})
		},
	}
}

func newModulesCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "modules",
		Short: "Список модулей и их команд",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return opts.withRuntime(cmd, func(rt Runtime) error {
				registry := rt.Service().Registry
				items := make(map[string][]string)
				for _, name := range registry.Providers() {
					cmds, err := registry.Commands(name)
					if err != nil {
						return err
					}
					items[name] = cmds
				}
				return encode(cmd, items)
			})
		},
	}
}

func (o *options) run(cmd *cobra.Command, module, command string, args []string) error {
	return o.withRuntime(cmd, func(rt Runtime) error {
		ctx, cancel := context.WithTimeout(cmd.Context(), rt.CommandTimeout())
		defer cancel()
		resp, err := rt.Service().Execute(ctx, o.subject, module, command, args)
		return printResponse(cmd, resp, err)
	})
}

func (o *options) withRuntime(cmd *cobra.Command, fn func(Runtime) error) error {
	if o.factory == nil {
		return errors.New("runtime factory is not set")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
		cmd.SetContext(ctx)
	}
	rt, err := o.factory(ctx, o.configPath)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(rt)
}

// printResponse печатает конверт ответа; неуспех превращается в ошибку
// для ненулевого кода выхода.
func printResponse(cmd *cobra.Command, resp any, err error) error {
	if encErr := encode(cmd, resp); encErr != nil {
		return encErr
	}
	if err != nil {
		return fmt.Errorf("%w: %w", ErrCommandFailed, err)
	}
	return nil
}

func encode(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func defaultSubject() string {
	if u := strings.TrimSpace(os.Getenv("USER")); u != "" {
		return u
	}
	return "local"
}
