package main

import (
	"context"
	"errors"
	"fmt"
	"github.com/fansqz/inspector-bridge/bridge"
	"github.com/fansqz/inspector-bridge/config"
	"github.com/fansqz/inspector-bridge/injection"
	"github.com/fansqz/inspector-bridge/transport"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"net"
	"os"
	"os/signal"
	"syscall"
)

// 定义版本号
const Version = "1.0.1"

var (
	configPath  string
	showVersion bool
	webHost     string
	webPort     int
	debugHost   string
	debugPort   int
	noInject    bool
	logLevel    string
	logFile     string
)

var rootCmd = &cobra.Command{
	Use:           "inspector-bridge",
	Short:         "Bridge a legacy WebSocket inspector front end to a V8 debugger port",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE:          run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVar(&configPath, "config", "", "Path of the yaml config file")
	flags.BoolVar(&showVersion, "version", false, "Show the version number")
	flags.StringVar(&webHost, "web-host", "", "Host the front end listener binds to")
	flags.IntVar(&webPort, "web-port", 0, "Port the front end listener binds to")
	flags.StringVar(&debugHost, "debug-host", "", "Host of the debuggee's debug port")
	flags.IntVar(&debugPort, "debug-port", 0, "Debug port of the debuggee")
	flags.BoolVar(&noInject, "no-inject", false, "Do not inject debugger extensions into the debuggee")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn or error")
	flags.StringVar(&logFile, "log-file", "", "Write logs to this file instead of stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	// 检查是否需要显示版本信息
	if showVersion {
		fmt.Printf("Version: %s\n", Version)
		return nil
	}
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	//启动日志
	if err = SetupLogger(c.Log); err != nil {
		return err
	}
	defer CloseLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 连接调试进程
	debugger, err := transport.Dial(ctx, c.DebuggerAddress(), c.Debugger.DialTimeout)
	if err != nil {
		return err
	}
	// 监听前端
	listener, err := net.Listen("tcp", c.WebAddress())
	if err != nil {
		_ = debugger.Close()
		return fmt.Errorf("listen %s: %w", c.WebAddress(), err)
	}

	b := bridge.New(debugger, injection.Config{
		Enabled: c.Injection.Enabled,
		Timeout: c.Injection.Timeout,
		Options: c.Injection.Options,
	})
	err = b.Run(ctx, listener)
	if errors.Is(err, context.Canceled) {
		logrus.Infof("[Main] stopped")
		return nil
	}
	logrus.Errorf("[Main] bridge stopped, err = %v", err)
	return err
}

// loadConfig 读取配置文件，命令行参数覆盖文件中的值
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	c, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	flags := cmd.Flags()
	if flags.Changed("web-host") {
		c.Web.Host = webHost
	}
	if flags.Changed("web-port") {
		c.Web.Port = webPort
	}
	if flags.Changed("debug-host") {
		c.Debugger.Host = debugHost
	}
	if flags.Changed("debug-port") {
		c.Debugger.Port = debugPort
	}
	if noInject {
		c.Injection.Enabled = false
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-file") {
		c.Log.File = logFile
	}
	if err = c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}
