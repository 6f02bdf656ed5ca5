package servecmder

import (
	"context"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/llm"
	"github.com/papercomputeco/chatline/pkg/merkle"
)

func setenv(key, value string) {
	old, had := os.LookupEnv(key)
	Expect(os.Setenv(key, value)).To(Succeed())
	DeferCleanup(func() {
		if had {
			os.Setenv(key, old)
		} else {
			os.Unsetenv(key)
		}
	})
}

var _ = Describe("Serve Command", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "chatline-serve-test-*")
		Expect(err).NotTo(HaveOccurred())
		setenv("HOME", tmpDir)
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	It("refuses to start without an API key", func() {
		setenv(config.APIKeyEnv, "")
		setenv(config.FallbackAPIKeyEnv, "")

		cmd := NewServeCmd()
		cmd.SetArgs([]string{})
		err := cmd.ExecuteContext(context.Background())

		Expect(err).To(MatchError(llm.ErrMissingCredential))
	})

	It("applies flag overrides over the config file", func() {
		setenv(config.APIKeyEnv, "test-key")
		path := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(path, []byte("[server]\nlisten = \":7000\"\n\n[store]\ndb_path = \"from-file.db\"\n"), 0o644)).To(Succeed())

		cmder := &serveCommander{configPath: path, listenAddr: ":9000"}
		cfg, err := cmder.loadConfig()
		Expect(err).NotTo(HaveOccurred())

		Expect(cfg.Server.ListenAddr).To(Equal(":9000"))
		Expect(cfg.Store.DBPath).To(Equal("from-file.db"))
		Expect(cfg.APIKey).To(Equal("test-key"))
	})

	It("expands a leading ~ in the database path", func() {
		setenv(config.APIKeyEnv, "test-key")
		path := filepath.Join(tmpDir, "config.toml")
		Expect(os.WriteFile(path, []byte("[store]\ndb_path = \"~/dbs/chatline.db\"\n"), 0o644)).To(Succeed())

		cmder := &serveCommander{configPath: path}
		cfg, err := cmder.loadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Store.DBPath).To(Equal(filepath.Join(tmpDir, "dbs", "chatline.db")))

		cmder.dbPath = "~/flag.db"
		cfg, err = cmder.loadConfig()
		Expect(err).NotTo(HaveOccurred())
		Expect(cfg.Store.DBPath).To(Equal(filepath.Join(tmpDir, "flag.db")))
	})

	It("keeps transcripts in memory without a database", func() {
		storer, err := openStore("")
		Expect(err).NotTo(HaveOccurred())
		defer storer.Close()

		Expect(storer).To(BeAssignableToTypeOf(&merkle.MemoryStorer{}))
	})

	It("opens the SQLite database when one is configured", func() {
		storer, err := openStore(filepath.Join(tmpDir, "serve.sqlite"))
		Expect(err).NotTo(HaveOccurred())
		defer storer.Close()

		Expect(storer).To(BeAssignableToTypeOf(&merkle.SQLiteStorer{}))
	})
})
