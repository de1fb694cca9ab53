package capture

import (
	"bytes"
	"image"
	"image/color"
	"image/png"

	"github.com/disintegration/imaging"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// encodeTestFrame builds a solid-color JPEG frame of the given size.
func encodeTestFrame(width, height int, c color.Color) *CapturedFrame {
	img := imaging.New(width, height, c)
	var buf bytes.Buffer
	Expect(imaging.Encode(&buf, img, imaging.JPEG)).To(Succeed())
	return &CapturedFrame{Data: buf.Bytes(), Width: width, Height: height}
}

var _ = Describe("Normalizer", func() {
	var (
		normalizer *Normalizer
		frame      *CapturedFrame
		result     *NormalizedImage
		err        error
	)

	BeforeEach(func() {
		normalizer = NewNormalizer(DefaultRatio, DefaultWidth)
	})

	JustBeforeEach(func() {
		result, err = normalizer.Normalize(frame)
	})

	When("the frame is wider than the target ratio", func() {
		BeforeEach(func() {
			frame = encodeTestFrame(1920, 800, color.White)
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should produce the target dimensions", func() {
			Expect(result.Width).To(Equal(1280))
			Expect(result.Height).To(Equal(731))
		})

		It("should satisfy the aspect-ratio invariant within rounding tolerance", func() {
			ratio := float64(result.Width) / float64(result.Height)
			Expect(ratio).To(BeNumerically("~", DefaultRatio, 0.01))
		})

		It("should encode as JPEG", func() {
			Expect(result.ContentType).To(Equal("image/jpeg"))
			decoded, format, decodeErr := image.Decode(bytes.NewReader(result.Data))
			Expect(decodeErr).NotTo(HaveOccurred())
			Expect(format).To(Equal("jpeg"))
			Expect(decoded.Bounds().Dx()).To(Equal(1280))
			Expect(decoded.Bounds().Dy()).To(Equal(731))
		})
	})

	When("the frame is taller than the target ratio", func() {
		BeforeEach(func() {
			frame = encodeTestFrame(1080, 1920, color.White)
		})

		It("should still produce the target dimensions", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Width).To(Equal(1280))
			Expect(result.Height).To(Equal(731))
		})
	})

	When("the frame is already at the target ratio and width", func() {
		BeforeEach(func() {
			frame = encodeTestFrame(1280, 731, color.White)
		})

		It("should keep the dimensions unchanged", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(result.Width).To(Equal(1280))
			Expect(result.Height).To(Equal(731))
		})
	})

	When("the frame is small", func() {
		BeforeEach(func() {
			frame = encodeTestFrame(350, 200, color.White)
		})

		It("should scale up to the bounded target box", func() {
			Expect(err).NotTo(HaveOccurred())
			ratio := float64(result.Width) / float64(result.Height)
			Expect(ratio).To(BeNumerically("~", DefaultRatio, 0.01))
		})
	})

	When("the frame has transparency", func() {
		BeforeEach(func() {
			img := image.NewNRGBA(image.Rect(0, 0, 700, 400))
			var buf bytes.Buffer
			Expect(png.Encode(&buf, img)).To(Succeed())
			frame = &CapturedFrame{Data: buf.Bytes(), Width: 700, Height: 400}
		})

		It("should composite over an opaque white background", func() {
			Expect(err).NotTo(HaveOccurred())
			decoded, _, decodeErr := image.Decode(bytes.NewReader(result.Data))
			Expect(decodeErr).NotTo(HaveOccurred())
			r, g, b, a := decoded.At(10, 10).RGBA()
			Expect(a).To(Equal(uint32(0xffff)))
			Expect(r).To(BeNumerically(">", uint32(0xf000)))
			Expect(g).To(BeNumerically(">", uint32(0xf000)))
			Expect(b).To(BeNumerically(">", uint32(0xf000)))
		})
	})

	When("the frame cannot be decoded", func() {
		BeforeEach(func() {
			frame = &CapturedFrame{Data: []byte("not an image"), Width: 100, Height: 100}
		})

		It("should fail with a decode error", func() {
			Expect(err).To(MatchError(ErrImageDecode))
			Expect(result).To(BeNil())
		})
	})

	When("the frame is nil", func() {
		BeforeEach(func() {
			frame = nil
		})

		It("should fail with a decode error", func() {
			Expect(err).To(MatchError(ErrImageDecode))
		})
	})
})
