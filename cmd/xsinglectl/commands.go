package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"time"

	"github.com/urfave/cli/v3"

	"github.com/omeyang/xsingle/pkg/distributed/xsingle"
)

// 退出码
const (
	exitOK             = 0
	exitFailure        = 1
	exitUsage          = 2
	exitAlreadyRunning = 3
)

// exitError 命令已完成输出，只需设置退出码。
type exitError struct {
	code int
}

func (e *exitError) Error() string { return fmt.Sprintf("exit status %d", e.code) }

// usageError 参数或配置错误，对应退出码 2。
type usageError struct {
	err error
}

func (e *usageError) Error() string { return e.err.Error() }
func (e *usageError) Unwrap() error { return e.err }

func usagef(format string, args ...any) error {
	return &usageError{err: fmt.Errorf(format, args...)}
}

func onUsageError(_ context.Context, _ *cli.Command, err error, _ bool) error {
	return &usageError{err: err}
}

// runApp 执行命令行并返回退出码。
func runApp(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	env := &cliEnv{stdout: stdout, stderr: stderr}
	defer env.close()

	err := createApp(env).Run(ctx, args)
	return exitCode(err, stderr)
}

// exitCode 把命令错误映射为退出码并输出错误信息。
func exitCode(err error, stderr io.Writer) int {
	if err == nil {
		return exitOK
	}

	var exitErr *exitError
	if errors.As(err, &exitErr) {
		return exitErr.code
	}

	if xsingle.IsAlreadyRunning(err) {
		fmt.Fprintf(stderr, "已有其他实例在运行: %v\n", err)
		return exitAlreadyRunning
	}

	var usageErr *usageError
	if errors.As(err, &usageErr) || isInvalidInput(err) {
		fmt.Fprintf(stderr, "参数错误: %v\n", err)
		return exitUsage
	}

	fmt.Fprintf(stderr, "错误: %v\n", err)
	return exitFailure
}

// isInvalidInput 判断错误是否源于调用方输入。
func isInvalidInput(err error) bool {
	for _, target := range []error{
		xsingle.ErrEmptyKey,
		xsingle.ErrKeyTooLong,
		xsingle.ErrInvalidKey,
		xsingle.ErrInvalidTimeout,
		xsingle.ErrInvalidArgs,
		xsingle.ErrUnsupportedScheme,
		xsingle.ErrInvalidConfig,
		xsingle.ErrUnsupportedFormat,
	} {
		if errors.Is(err, target) {
			return true
		}
	}
	return false
}

func createApp(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "xsinglectl",
		Usage:     "单实例锁运维工具",
		Version:   fmt.Sprintf("%s (commit: %s)", Version, GitCommit),
		Writer:    env.stdout,
		ErrWriter: env.stderr,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "backend",
				Aliases: []string{"b"},
				Usage:   "锁后端 URI，如 redis://localhost:6379/0",
				Sources: cli.EnvVars("XSINGLE_BACKEND"),
			},
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "配置文件路径（yaml / json）",
				Sources: cli.EnvVars("XSINGLE_CONFIG"),
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "日志级别 (debug/info/warn/error)",
			},
		},
		Commands: []*cli.Command{
			createAcquireCommand(env),
			createReleaseCommand(env),
			createExistsCommand(env),
			createRunCommand(env),
		},
		Action: func(_ context.Context, cmd *cli.Command) error {
			if cmd.NArg() > 0 {
				return usagef("unknown command %q", cmd.Args().First())
			}
			_ = cli.ShowAppHelp(cmd)
			return usagef("missing command")
		},
		OnUsageError: onUsageError,
		// 由 runApp 统一映射退出码，不让 urfave/cli 直接调用 os.Exit
		ExitErrHandler: func(context.Context, *cli.Command, error) {},
	}
}

func timeoutFlag() cli.Flag {
	return &cli.DurationFlag{
		Name:    "timeout",
		Aliases: []string{"t"},
		Usage:   "锁超时",
		Value:   xsingle.DefaultTimeout,
	}
}

// keyArg 读取唯一的位置参数 key。
func keyArg(cmd *cli.Command) (string, error) {
	if cmd.NArg() != 1 {
		return "", usagef("%s requires exactly one <key> argument", cmd.Name)
	}
	return cmd.Args().First(), nil
}

func createAcquireCommand(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:         "acquire",
		Usage:        "尝试获取锁，已被持有时退出码为 3",
		ArgsUsage:    "<key>",
		Flags:        []cli.Flag{timeoutFlag()},
		OnUsageError: onUsageError,
		Action: env.action(func(ctx context.Context, cmd *cli.Command) error {
			key, err := keyArg(cmd)
			if err != nil {
				return err
			}
			ok, err := env.backend.Acquire(ctx, key, cmd.Duration("timeout"))
			if err != nil {
				return err
			}
			if !ok {
				fmt.Fprintf(env.stdout, "%s: already held\n", key)
				return &exitError{code: exitAlreadyRunning}
			}
			fmt.Fprintf(env.stdout, "%s: acquired\n", key)
			return nil
		}),
	}
}

func createReleaseCommand(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:         "release",
		Usage:        "释放锁（幂等）",
		ArgsUsage:    "<key>",
		OnUsageError: onUsageError,
		Action: env.action(func(ctx context.Context, cmd *cli.Command) error {
			key, err := keyArg(cmd)
			if err != nil {
				return err
			}
			if err := env.backend.Release(ctx, key); err != nil {
				return err
			}
			fmt.Fprintf(env.stdout, "%s: released\n", key)
			return nil
		}),
	}
}

func createExistsCommand(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:         "exists",
		Usage:        "查询锁是否被有效持有（held: 退出码 0，free: 退出码 1）",
		ArgsUsage:    "<key>",
		Flags:        []cli.Flag{timeoutFlag()},
		OnUsageError: onUsageError,
		Action: env.action(func(ctx context.Context, cmd *cli.Command) error {
			key, err := keyArg(cmd)
			if err != nil {
				return err
			}
			held, err := env.backend.Exists(ctx, key, cmd.Duration("timeout"))
			if err != nil {
				return err
			}
			if !held {
				fmt.Fprintln(env.stdout, "free")
				return &exitError{code: exitFailure}
			}
			fmt.Fprintln(env.stdout, "held")
			return nil
		}),
	}
}

func createRunCommand(env *cliEnv) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "在单实例保护下运行外部命令",
		ArgsUsage: "-- <command> [args...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "name", Aliases: []string{"n"}, Usage: "任务名（锁 key）"},
			&cli.BoolFlag{Name: "include-args", Usage: "锁 key 包含命令参数摘要"},
			&cli.DurationFlag{Name: "lock-timeout", Usage: "显式锁超时"},
			&cli.DurationFlag{Name: "time-limit", Usage: "硬时间限制，超时后终止命令"},
			&cli.DurationFlag{Name: "soft-time-limit", Usage: "软时间限制，仅参与锁超时推导"},
		},
		OnUsageError: onUsageError,
		Action: env.action(func(ctx context.Context, cmd *cli.Command) error {
			name := strings.TrimSpace(cmd.String("name"))
			if name == "" {
				return usagef("run requires --name")
			}
			argv := cmd.Args().Slice()
			if len(argv) == 0 {
				return usagef("run requires a command after --")
			}
			if cmd.Duration("lock-timeout") < 0 || cmd.Duration("time-limit") < 0 || cmd.Duration("soft-time-limit") < 0 {
				return usagef("durations must not be negative")
			}

			job := xsingle.Job{
				Name:        name,
				IncludeArgs: cmd.Bool("include-args"),
				LockTimeout: cmd.Duration("lock-timeout"),
				Limits: xsingle.Limits{
					Hard: cmd.Duration("time-limit"),
					Soft: cmd.Duration("soft-time-limit"),
				},
			}
			return env.runGuarded(ctx, job, argv)
		}),
	}
}

// runGuarded 持锁运行外部命令，命令退出码原样透传。
func (e *cliEnv) runGuarded(ctx context.Context, job xsingle.Job, argv []string) error {
	inv := xsingle.Args(stringsToAny(argv)...)
	err := e.guard.Run(ctx, job, inv, func(ctx context.Context) error {
		if hard := job.Limits.Hard; hard > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, hard)
			defer cancel()
		}

		c := exec.CommandContext(ctx, argv[0], argv[1:]...)
		c.Stdout = e.stdout
		c.Stderr = e.stderr
		c.WaitDelay = 5 * time.Second
		return c.Run()
	})

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code <= 0 {
			// 被信号终止
			code = exitFailure
		}
		return &exitError{code: code}
	}
	return err
}

func stringsToAny(ss []string) []any {
	out := make([]any, len(ss))
	for i, s := range ss {
		out[i] = s
	}
	return out
}
