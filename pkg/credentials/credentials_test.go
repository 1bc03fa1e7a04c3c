package credentials_test

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/brookhq/brook/pkg/credentials"
)

var _ = Describe("Manager", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "credentials-test-*")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		os.RemoveAll(tmpDir)
	})

	Describe("NewManager", func() {
		It("creates a manager with an override directory", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())
			Expect(mgr).NotTo(BeNil())
			Expect(mgr.GetTarget()).To(Equal(filepath.Join(tmpDir, "session.toml")))
		})
	})

	Describe("Load", func() {
		It("returns empty credentials when no file exists", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds).NotTo(BeNil())
			Expect(creds.Session.Token).To(BeEmpty())
			Expect(creds.Upstream.APIKey).To(BeEmpty())
		})

		It("loads existing credentials", func() {
			data := `version = 0

[session]
token = "brook-session-token"

[upstream]
api_key = "sk-test-key"
`
			err := os.WriteFile(filepath.Join(tmpDir, "session.toml"), []byte(data), 0o600)
			Expect(err).NotTo(HaveOccurred())

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds, err := mgr.Load()
			Expect(err).NotTo(HaveOccurred())
			Expect(creds.Session.Token).To(Equal("brook-session-token"))
			Expect(creds.Upstream.APIKey).To(Equal("sk-test-key"))
		})

		It("returns error for malformed TOML", func() {
			err := os.WriteFile(filepath.Join(tmpDir, "session.toml"), []byte("not valid [[["), 0o600)
			Expect(err).NotTo(HaveOccurred())

			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds, err := mgr.Load()
			Expect(err).To(HaveOccurred())
			Expect(creds).To(BeNil())
		})
	})

	Describe("Save", func() {
		It("persists credentials to disk with restricted permissions", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			creds := &credentials.Credentials{
				Session: credentials.SessionCredential{Token: "tok"},
			}
			err = mgr.Save(creds)
			Expect(err).NotTo(HaveOccurred())

			info, err := os.Stat(mgr.GetTarget())
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0o600)))
		})

		It("returns error for nil credentials", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = mgr.Save(nil)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("SetSessionToken", func() {
		It("stores and round-trips a token", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			err = mgr.SetSessionToken("brook-token")
			Expect(err).NotTo(HaveOccurred())

			tok, err := mgr.SessionToken()
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(Equal("brook-token"))
		})

		It("preserves the upstream key when setting the session token", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetUpstreamKey("sk-keep")).To(Succeed())
			Expect(mgr.SetSessionToken("tok")).To(Succeed())

			key, err := mgr.UpstreamKey()
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-keep"))
		})
	})

	Describe("SessionToken", func() {
		It("returns empty string when nothing is stored", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			tok, err := mgr.SessionToken()
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(BeEmpty())
		})

		It("prefers the BROOK_SESSION_TOKEN environment variable", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetSessionToken("stored")).To(Succeed())

			os.Setenv(credentials.SessionTokenEnvVar, "from-env")
			defer os.Unsetenv(credentials.SessionTokenEnvVar)

			tok, err := mgr.SessionToken()
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(Equal("from-env"))
		})
	})

	Describe("ClearSessionToken", func() {
		It("removes the stored token", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetSessionToken("tok")).To(Succeed())
			Expect(mgr.ClearSessionToken()).To(Succeed())

			tok, err := mgr.SessionToken()
			Expect(err).NotTo(HaveOccurred())
			Expect(tok).To(BeEmpty())
		})
	})

	Describe("UpstreamKey", func() {
		It("prefers the OPENAI_API_KEY environment variable", func() {
			mgr, err := credentials.NewManager(tmpDir)
			Expect(err).NotTo(HaveOccurred())

			Expect(mgr.SetUpstreamKey("sk-stored")).To(Succeed())

			os.Setenv(credentials.UpstreamKeyEnvVar, "sk-env")
			defer os.Unsetenv(credentials.UpstreamKeyEnvVar)

			key, err := mgr.UpstreamKey()
			Expect(err).NotTo(HaveOccurred())
			Expect(key).To(Equal("sk-env"))
		})
	})
})
