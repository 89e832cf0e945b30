package servecmder

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/papercomputeco/azrelay/pkg/config"
	"github.com/papercomputeco/azrelay/pkg/eventstream/kafka"
	"github.com/papercomputeco/azrelay/pkg/eventstream/nop"
)

var _ = Describe("serve command", func() {
	var (
		tmpDir string
		cmder  *serveCommander
	)

	// resolve parses args the way cobra would and runs the PreRunE hook.
	resolve := func(args ...string) error {
		cmd := newServeCmd(cmder)
		cmd.Flags().String("config-dir", "", "")
		if err := cmd.ParseFlags(append(args, "--config-dir", tmpDir)); err != nil {
			return err
		}
		return cmd.PreRunE(cmd, nil)
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		cmder = &serveCommander{}

		for _, key := range config.ValidConfigKeys() {
			if prev, ok := os.LookupEnv(key); ok {
				Expect(os.Unsetenv(key)).To(Succeed())
				DeferCleanup(os.Setenv, key, prev)
			}
		}
	})

	It("registers every serve flag", func() {
		cmd := NewServeCmd()
		for _, key := range serveFlagKeys {
			Expect(cmd.Flags().Lookup(config.ServeFlags[key].Name)).NotTo(BeNil(), key)
		}
		Expect(cmd.Flags().ShorthandLookup("p").Name).To(Equal("port"))
	})

	It("resolves defaults without a config file", func() {
		Expect(resolve()).To(Succeed())
		Expect(cmder.cfg).To(Equal(config.NewDefaultConfig()))
	})

	It("layers the config file under flags", func() {
		data := "PORT = 6000\nBASE_URL = \"https://file.openai.azure.com\"\n"
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte(data), 0o600)).To(Succeed())

		Expect(resolve("--port", "7000", "--compat-mode")).To(Succeed())
		Expect(cmder.cfg.Port).To(Equal(uint(7000)))
		Expect(cmder.cfg.BaseURL).To(Equal("https://file.openai.azure.com"))
		Expect(cmder.cfg.CompatMode).To(BeTrue())
	})

	It("lets the environment override the config file", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("HOST = \"10.0.0.1\"\n"), 0o600)).To(Succeed())
		Expect(os.Setenv("HOST", "127.0.0.1")).To(Succeed())
		DeferCleanup(os.Unsetenv, "HOST")

		Expect(resolve()).To(Succeed())
		Expect(cmder.cfg.Host).To(Equal("127.0.0.1"))
	})

	It("fails on a malformed config file", func() {
		Expect(os.WriteFile(filepath.Join(tmpDir, "config.toml"), []byte("PORT = ["), 0o600)).To(Succeed())
		Expect(resolve()).To(MatchError(ContainSubstring("loading config")))
	})
})

var _ = Describe("newPublisher", func() {
	It("discards events without brokers", func() {
		cfg := config.NewDefaultConfig()

		publisher, err := newPublisher(cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher).To(BeAssignableToTypeOf(&nop.Publisher{}))
	})

	It("publishes to kafka when brokers are configured", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventsBrokers = "localhost:9092, localhost:9093"

		publisher, err := newPublisher(cfg, zap.NewNop())
		Expect(err).NotTo(HaveOccurred())
		Expect(publisher).To(BeAssignableToTypeOf(&kafka.Publisher{}))
		Expect(publisher.Close()).To(Succeed())
	})

	It("rejects brokers without a topic", func() {
		cfg := config.NewDefaultConfig()
		cfg.EventsBrokers = "localhost:9092"
		cfg.EventsTopic = ""

		_, err := newPublisher(cfg, zap.NewNop())
		Expect(err).To(MatchError(ContainSubstring("creating kafka publisher")))
	})
})
