package main

import (
	"bytes"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"runtime"
	"runtime/debug"
	"syscall"

	"github.com/go-errors/errors"
	"github.com/integrii/flaggy"
	yaml "github.com/jesseduffield/yaml"
	"github.com/samber/lo"

	"github.com/AI-Infra-Team/dependency-img-build/pkg/app"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/config"
	"github.com/AI-Infra-Team/dependency-img-build/pkg/utils"
)

const DEFAULT_VERSION = "unversioned"

var (
	commit  string
	version = DEFAULT_VERSION
	date    string

	configFlag    = false
	debuggingFlag = false
	forceFlag     = false
	declPath      = "build.yaml"
	runtimeFlag   = ""
)

func main() {
	updateBuildInfo()

	info := fmt.Sprintf(
		"%s\nDate: %s\nCommit: %s\nOS: %s\nArch: %s",
		version, date, commit, runtime.GOOS, runtime.GOARCH,
	)

	flaggy.SetName("dependency-img-build")
	flaggy.SetDescription("Incrementally builds container images by reusing layers already present in the local runtime")
	flaggy.DefaultParser.AdditionalHelpPrepend = "https://github.com/AI-Infra-Team/dependency-img-build"

	flaggy.Bool(&configFlag, "c", "config", "Print the current default config")
	flaggy.Bool(&debuggingFlag, "d", "debug", "a boolean")
	flaggy.Bool(&forceFlag, "f", "force", "Force a full rebuild, ignoring the dependency checksum and any reusable layers")
	flaggy.String(&runtimeFlag, "r", "runtime", "Container runtime binary to use (docker or podman); auto-detected if unset")
	flaggy.AddPositionalValue(&declPath, "declaration", 1, false, "Path to the build declaration (YAML or JSON)")
	flaggy.SetVersion(info)

	flaggy.Parse()

	if configFlag {
		var buf bytes.Buffer
		if err := yaml.NewEncoder(&buf).Encode(config.GetDefaultConfig()); err != nil {
			log.Fatal(err.Error())
		}
		fmt.Printf("%v\n", buf.String())
		os.Exit(0)
	}

	projectDir, err := os.Getwd()
	if err != nil {
		log.Fatal(err.Error())
	}

	appConfig, err := config.NewAppConfig("dependency-img-build", version, commit, date, "source", debuggingFlag, projectDir)
	if err != nil {
		log.Fatal(err.Error())
	}
	if runtimeFlag != "" {
		appConfig.UserConfig.Runtime = runtimeFlag
	}

	a, err := app.NewApp(appConfig)
	if err == nil {
		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			cancel()
		}()

		err = a.Build(ctx, declPath, forceFlag)
	}
	a.Close()

	if err != nil {
		if errMessage, known := a.KnownError(err); known {
			log.Println(errMessage)
			os.Exit(1)
		}

		newErr := errors.Wrap(err, 0)
		stackTrace := newErr.ErrorStack()
		if a.Log != nil {
			a.Log.Error(stackTrace)
		}

		log.Fatalf("build failed\n\n%s", stackTrace)
	}
}

func updateBuildInfo() {
	if version == DEFAULT_VERSION {
		if buildInfo, ok := debug.ReadBuildInfo(); ok {
			revision, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.revision"
			})
			if ok {
				commit = revision.Value
				version = utils.SafeTruncate(revision.Value, 7)
			}

			t, ok := lo.Find(buildInfo.Settings, func(setting debug.BuildSetting) bool {
				return setting.Key == "vcs.time"
			})
			if ok {
				date = t.Value
			}
		}
	}
}

