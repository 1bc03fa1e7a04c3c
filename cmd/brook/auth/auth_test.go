package authcmder_test

import (
	"os"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	authcmder "github.com/brookhq/brook/cmd/brook/auth"
	"github.com/brookhq/brook/pkg/credentials"
)

var _ = Describe("Auth Command", func() {
	Describe("NewAuthCmd", func() {
		It("creates a command with expected properties", func() {
			cmd := authcmder.NewAuthCmd()
			Expect(cmd.Use).To(Equal("auth"))
			Expect(cmd.Short).NotTo(BeEmpty())
		})

		It("registers the credential subcommands", func() {
			cmd := authcmder.NewAuthCmd()

			var names []string
			for _, sub := range cmd.Commands() {
				names = append(names, sub.Name())
			}
			Expect(names).To(ContainElements("login", "key", "status", "logout"))
		})

		It("documents the file the credentials manager writes", func() {
			tmpDir := GinkgoT().TempDir()

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr.SetSessionToken("tok-1")).To(Succeed())

			entries, err := os.ReadDir(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(HaveLen(1))

			Expect(authcmder.NewAuthCmd().Long).To(ContainSubstring(entries[0].Name()))
		})
	})
})
