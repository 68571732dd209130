package config_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/smartystreets/goconvey/convey"

	"github.com/Noofbiz/sceneforecast/config"
)

func TestConfig_New(t *testing.T) {
	convey.Convey("Given a new config", t, func() {
		cfg := config.New()

		convey.Convey("Then it should have sensible defaults", func() {
			convey.So(cfg.LogLevel, convey.ShouldEqual, "info")
			convey.So(cfg.SecondsOfFuture, convey.ShouldEqual, 6)
			convey.So(cfg.SampledAt, convey.ShouldEqual, 2)
			convey.So(cfg.Timesteps(), convey.ShouldEqual, 12)
			convey.So(cfg.Raster.Resolution, convey.ShouldEqual, 0.1)
			convey.So(cfg.Model.Head, convey.ShouldEqual, "mtp")
			convey.So(cfg.Validate(), convey.ShouldBeNil)
		})
	})
}

func TestConfig_Validate(t *testing.T) {
	convey.Convey("Given an invalid config", t, func() {
		cfg := config.New()
		cfg.Model.Modes = 30
		cfg.Submission.Compression = "bzip2"

		convey.Convey("Then validation reports every problem", func() {
			err := cfg.Validate()
			convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			convey.So(err.Error(), convey.ShouldContainSubstring, "model.modes")
			convey.So(err.Error(), convey.ShouldContainSubstring, "bzip2")
		})
	})
}

func TestLoad(t *testing.T) {
	convey.Convey("Given a YAML file", t, func() {
		dir := t.TempDir()
		path := filepath.Join(dir, "config.yaml")
		yaml := "log_level: debug\nworkers: 3\nraster:\n  resolution: 0.25\nmodel:\n  head: covernet\n  k: 4\n"
		convey.So(os.WriteFile(path, []byte(yaml), 0o644), convey.ShouldBeNil)

		convey.Convey("When loading it by path", func() {
			cfg, err := config.Load(context.Background(), path)

			convey.Convey("Then file values override defaults and the rest stay", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.LogLevel, convey.ShouldEqual, "debug")
				convey.So(cfg.Workers, convey.ShouldEqual, 3)
				convey.So(cfg.Raster.Resolution, convey.ShouldEqual, 0.25)
				convey.So(cfg.Raster.MetersAhead, convey.ShouldEqual, 40)
				convey.So(cfg.Model.Head, convey.ShouldEqual, "covernet")
				convey.So(cfg.Model.K, convey.ShouldEqual, 4)
				convey.So(cfg.Model.NumSims, convey.ShouldEqual, 100)
			})
		})

		convey.Convey("When env vars are set as well", func() {
			t.Setenv("SCENEFORECAST_CONFIG", path)
			t.Setenv("SCENEFORECAST_WORKERS", "7")
			t.Setenv("SCENEFORECAST_RASTER__METERS_AHEAD", "60")
			cfg, err := config.Load(context.Background(), "")

			convey.Convey("Then env wins over the file", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(cfg.Workers, convey.ShouldEqual, 7)
				convey.So(cfg.Raster.MetersAhead, convey.ShouldEqual, 60)
				convey.So(cfg.Raster.Resolution, convey.ShouldEqual, 0.25)
			})
		})

		convey.Convey("When the file holds an invalid value", func() {
			bad := filepath.Join(dir, "bad.yaml")
			convey.So(os.WriteFile(bad, []byte("sampled_at: 0\n"), 0o644), convey.ShouldBeNil)
			_, err := config.Load(context.Background(), bad)

			convey.Convey("Then loading fails validation", func() {
				convey.So(errors.Is(err, config.ErrInvalidConfig), convey.ShouldBeTrue)
			})
		})
	})

	convey.Convey("Given a missing file", t, func() {
		_, err := config.Load(context.Background(), filepath.Join(t.TempDir(), "nope.yaml"))

		convey.Convey("Then a load error is returned", func() {
			convey.So(errors.Is(err, config.ErrLoadConfig), convey.ShouldBeTrue)
		})
	})
}
