// Package injection 在被调试进程中安装额外的调试命令和事件源
// 注入的程序来自固定的目录，按 key 选择，不会发送任意代码
package injection

import (
	"embed"
	"fmt"
	"github.com/emirpasic/gods/sets"
	e "github.com/fansqz/inspector-bridge/error"
	"github.com/fansqz/inspector-bridge/utils"
	"sort"
	"strings"
	"sync"
)

// CatalogVersion 注入程序目录的版本，随程序一起发送给被调试进程
const CatalogVersion = 1

const (
	KeyRuntime      = "runtime"
	KeyProfiler     = "profiler"
	KeyHeapProfiler = "heap-profiler"
	KeyConsole      = "console"
)

//go:embed scripts/*.js
var scripts embed.FS

// Bootstrap 一个注入程序
type Bootstrap struct {
	Key     string
	Version int
	// Source 形如 function (require, debug, options) {...} 的函数表达式
	Source string
	// Commands 程序注册的命令，带域名前缀
	Commands sets.Set
	// DefaultOptions 程序需要的选项的默认值
	DefaultOptions Options
}

// Provides 程序是否注册了 command
func (b *Bootstrap) Provides(command string) bool {
	return b.Commands.Contains(command)
}

var (
	catalogOnce    sync.Once
	catalog        map[string]*Bootstrap
	injectorSource string
)

func loadCatalog() {
	injectorSource = mustRead("injector.js")
	catalog = map[string]*Bootstrap{
		KeyRuntime: {
			Key:     KeyRuntime,
			Version: CatalogVersion,
			Source:  mustRead("runtime.js"),
			Commands: utils.List2set([]string{
				"Runtime.releaseObject", "Runtime.releaseObjectGroup",
			}),
		},
		KeyProfiler: {
			Key:     KeyProfiler,
			Version: CatalogVersion,
			Source:  mustRead("profiler.js"),
			Commands: utils.List2set([]string{
				"Profiler.enable", "Profiler.disable", "Profiler.start", "Profiler.stop",
				"Profiler.setSamplingInterval",
			}),
			DefaultOptions: Options{"profilerModule": "v8-profiler"},
		},
		KeyHeapProfiler: {
			Key:     KeyHeapProfiler,
			Version: CatalogVersion,
			Source:  mustRead("heap-profiler.js"),
			Commands: utils.List2set([]string{
				"HeapProfiler.takeHeapSnapshot", "HeapProfiler.startTrackingHeapObjects",
				"HeapProfiler.stopTrackingHeapObjects", "HeapProfiler.collectGarbage",
				"HeapProfiler.getHeapObjectId", "HeapProfiler._lookupHeapObjectId",
			}),
			DefaultOptions: Options{"profilerModule": "v8-profiler", "trackingInterval": 500},
		},
		KeyConsole: {
			Key:     KeyConsole,
			Version: CatalogVersion,
			Source:  mustRead("console.js"),
			Commands: utils.List2set([]string{
				"Console.enable", "Console.disable", "Console.clearMessages",
			}),
		},
	}
}

func mustRead(name string) string {
	data, err := scripts.ReadFile("scripts/" + name)
	if err != nil {
		panic(fmt.Sprintf("injection script %s missing: %v", name, err))
	}
	source := strings.TrimSpace(string(data))
	// 去掉开头的注释行，只保留函数表达式
	for strings.HasPrefix(source, "//") {
		if i := strings.IndexByte(source, '\n'); i >= 0 {
			source = strings.TrimSpace(source[i+1:])
		} else {
			source = ""
		}
	}
	return source
}

// Lookup 按 key 取注入程序
func Lookup(key string) (*Bootstrap, error) {
	catalogOnce.Do(loadCatalog)
	b, ok := catalog[key]
	if !ok {
		return nil, fmt.Errorf("%w: %s", e.ErrUnknownBootstrap, key)
	}
	return b, nil
}

// Keys 目录中所有的 key，按字母序
func Keys() []string {
	catalogOnce.Do(loadCatalog)
	keys := make([]string, 0, len(catalog))
	for k := range catalog {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Expression 生成发送给 evaluate 的表达式
func (b *Bootstrap) Expression(options Options) (string, error) {
	catalogOnce.Do(loadCatalog)
	merged := Options{}
	for k, v := range b.DefaultOptions {
		merged[k] = v
	}
	for k, v := range options {
		merged[k] = v
	}
	merged["bootstrap"] = b.Key
	merged["version"] = b.Version
	encoded, err := merged.Encode()
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("(%s)(%s, %s)", injectorSource, b.Source, encoded), nil
}
