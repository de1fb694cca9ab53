package card

import (
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalStorage", func() {
	var (
		tmpDir  string
		storage *LocalStorage
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		storage, err = NewLocalStorage(filepath.Join(tmpDir, "images"))
		Expect(err).NotTo(HaveOccurred())
	})

	It("creates the base directory", func() {
		info, err := os.Stat(filepath.Join(tmpDir, "images"))
		Expect(err).NotTo(HaveOccurred())
		Expect(info.IsDir()).To(BeTrue())
	})

	Describe("Save and Get", func() {
		It("round-trips a blob", func() {
			saved, err := storage.Save("card.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(Equal("card.jpg"))

			data, err := storage.Get("card.jpg")
			Expect(err).NotTo(HaveOccurred())
			Expect(data).To(Equal([]byte("jpeg bytes")))
		})

		It("strips directory components from the filename", func() {
			saved, err := storage.Save("../../etc/card.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())
			Expect(saved).To(Equal("card.jpg"))

			_, statErr := os.Stat(filepath.Join(tmpDir, "images", "card.jpg"))
			Expect(statErr).NotTo(HaveOccurred())
		})

		It("fails to get a missing blob", func() {
			_, err := storage.Get("missing.jpg")
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("Delete", func() {
		It("removes a stored blob", func() {
			_, err := storage.Save("card.jpg", []byte("jpeg bytes"))
			Expect(err).NotTo(HaveOccurred())

			Expect(storage.Delete("card.jpg")).To(Succeed())
			_, err = storage.Get("card.jpg")
			Expect(err).To(HaveOccurred())
		})

		It("fails for a missing blob", func() {
			Expect(storage.Delete("missing.jpg")).NotTo(Succeed())
		})
	})
})
