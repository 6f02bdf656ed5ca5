package mcpcmder

import (
	"context"
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/papercomputeco/chatline/pkg/config"
	"github.com/papercomputeco/chatline/pkg/llm"
)

var _ = Describe("MCP Command", func() {
	setenv := func(key, value string) {
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

	It("refuses to start without an API key", func() {
		tmpDir := GinkgoT().TempDir()
		setenv("HOME", tmpDir)
		setenv(config.APIKeyEnv, "")
		setenv(config.FallbackAPIKeyEnv, "")

		cmd := NewMCPCmd()
		cmd.SetArgs([]string{})
		err := cmd.ExecuteContext(context.Background())

		Expect(err).To(MatchError(llm.ErrMissingCredential))
		Expect(err.Error()).To(ContainSubstring(config.FallbackAPIKeyEnv))
	})
})
