package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/devbackplane/backplane/internal/config"
)

func TestConfig(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Config Suite")
}

var _ = Describe("Config", func() {
	var (
		tempDir    string
		configFile string
	)

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "config-test")
		Expect(err).NotTo(HaveOccurred())
		configFile = filepath.Join(tempDir, "config.yaml")
	})

	AfterEach(func() {
		os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("when config file exists with valid content", func() {
			BeforeEach(func() {
				validConfig := `
server:
  http_port: "8090"
  metrics_port: "9090"

memory:
  plugin_dir: "adapters.d"
  default_deadline: "30s"
  health_cache_ttl: "60s"
  max_items: 25
  dedup_threshold: 0.85

sprint:
  tracker_project: "AAP"
  working_hours:
    start_hour: 9
    start_minute: 0
    end_hour: 17
    end_minute: 0
    weekdays_only: true
    timezone: "America/New_York"
  check_interval_seconds: 300
  skip_blocked_after_minutes: 30

inference:
  provider: "localai"
  endpoint: "http://localhost:11434"
  model: "llama2"
  timeout: "5s"

logging:
  level: "info"
  format: "json"
`
				Expect(os.WriteFile(configFile, []byte(validConfig), 0644)).To(Succeed())
			})

			It("should load configuration successfully", func() {
				cfg, err := config.Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg).NotTo(BeNil())

				Expect(cfg.Server.HTTPPort).To(Equal("8090"))
				Expect(cfg.Memory.MaxItems).To(Equal(25))
				Expect(cfg.Memory.DedupThreshold).To(Equal(0.85))
				Expect(cfg.Sprint.TrackerProject).To(Equal("AAP"))
				Expect(cfg.Sprint.WorkingHours.StartHour).To(Equal(9))
				Expect(cfg.Sprint.WorkingHours.Timezone).To(Equal("America/New_York"))
				Expect(cfg.Inference.Provider).To(Equal("localai"))
				Expect(cfg.Inference.Timeout).To(Equal(5 * time.Second))
				Expect(cfg.Logging.Level).To(Equal("info"))
			})
		})

		Context("when config file has minimal content", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(configFile, []byte("logging:\n  level: debug\n"), 0644)).To(Succeed())
			})

			It("should fill in defaults for everything else", func() {
				cfg, err := config.Load(configFile)
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Logging.Level).To(Equal("debug"))
				Expect(cfg.Sprint.CheckIntervalSeconds).To(Equal(300))
				Expect(cfg.Memory.MaxItems).To(Equal(20))
			})
		})

		Context("when config file does not exist", func() {
			It("should return pure defaults, not an error", func() {
				cfg, err := config.Load(filepath.Join(tempDir, "missing.yaml"))
				Expect(err).NotTo(HaveOccurred())
				Expect(cfg.Sprint.TrackerProject).To(Equal("AAP"))
			})
		})

		Context("when config file has invalid enum values", func() {
			BeforeEach(func() {
				Expect(os.WriteFile(configFile, []byte("logging:\n  level: noisy\n"), 0644)).To(Succeed())
			})

			It("should return a validation error", func() {
				_, err := config.Load(configFile)
				Expect(err).To(HaveOccurred())
			})
		})
	})
})
