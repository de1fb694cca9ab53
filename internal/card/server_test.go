package card

import (
	"bytes"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		recognizer  *mockRecognizer
		service     *Service
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		recognizer = &mockRecognizer{text: "Jane Doe\nSoftware Engineer\nAcme Corp\njane.doe@acme.com"}
		service = NewServiceWithDeps(db, storage, recognizer, &mockIDGenerator{prefix: "id"}, &mockTimeSource{now: time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC)}, DefaultSessionTTL)
		server = NewServerWithMux(service, http.NewServeMux())
		ghttpServer = ghttp.NewServer()
	})

	AfterEach(func() {
		if ghttpServer != nil {
			ghttpServer.Close()
		}
	})

	// do routes one request through the server. ghttp consumes one appended
	// handler per request, so each call appends a fresh one.
	do := func(req *http.Request) *http.Response {
		ghttpServer.AppendHandlers(server.ServeHTTP)
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		return resp
	}

	newRequest := func(method, path, token string, body io.Reader) *http.Request {
		req, err := http.NewRequest(method, ghttpServer.URL()+path, body)
		Expect(err).NotTo(HaveOccurred())
		if body != nil {
			req.Header.Set("Content-Type", "application/json")
		}
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		return req
	}

	// login registers an account and returns a session token for it.
	login := func(email string) (string, string) {
		user, err := service.Register(email, "hunter2hunter2", "Test User")
		Expect(err).NotTo(HaveOccurred())
		session, err := service.Login(email, "hunter2hunter2")
		Expect(err).NotTo(HaveOccurred())
		return session.Token, user.ID
	}

	decodeBody := func(resp *http.Response, v any) {
		defer resp.Body.Close()
		Expect(json.NewDecoder(resp.Body).Decode(v)).To(Succeed())
	}

	multipartBody := func(filename string, data []byte) (*bytes.Buffer, string) {
		var buf bytes.Buffer
		writer := multipart.NewWriter(&buf)
		part, err := writer.CreateFormFile("file", filename)
		Expect(err).NotTo(HaveOccurred())
		_, err = part.Write(data)
		Expect(err).NotTo(HaveOccurred())
		Expect(writer.Close()).To(Succeed())
		return &buf, writer.FormDataContentType()
	}

	Describe("handleIndex", func() {
		It("serves the HTML interface", func() {
			resp := do(newRequest("GET", "/", "", nil))
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			body, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(ContainSubstring("Cardfolio"))
		})
	})

	Describe("authentication", func() {
		It("rejects API requests without a session", func() {
			resp := do(newRequest("GET", "/api/cards", "", nil))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("rejects API requests with a bogus token", func() {
			resp := do(newRequest("GET", "/api/cards", "bogus", nil))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("accepts the session cookie", func() {
			token, _ := login("jane@example.com")
			req := newRequest("GET", "/api/me", "", nil)
			req.AddCookie(&http.Cookie{Name: SessionCookieName, Value: token})

			resp := do(req)
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("handleRegister", func() {
		It("creates an account without leaking the password hash", func() {
			body := bytes.NewBufferString(`{"email":"jane@example.com","password":"hunter2hunter2","name":"Jane"}`)
			resp := do(newRequest("POST", "/api/register", "", body))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			raw, err := io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(err).NotTo(HaveOccurred())
			Expect(string(raw)).To(ContainSubstring("jane@example.com"))
			Expect(string(raw)).NotTo(ContainSubstring("password"))
		})

		It("rejects a duplicate email", func() {
			_, _ = login("jane@example.com")
			body := bytes.NewBufferString(`{"email":"jane@example.com","password":"hunter2hunter2"}`)
			resp := do(newRequest("POST", "/api/register", "", body))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})

	Describe("handleLogin", func() {
		BeforeEach(func() {
			_, err := service.Register("jane@example.com", "hunter2hunter2", "Jane")
			Expect(err).NotTo(HaveOccurred())
		})

		It("sets the session cookie on success", func() {
			body := bytes.NewBufferString(`{"email":"jane@example.com","password":"hunter2hunter2"}`)
			resp := do(newRequest("POST", "/api/login", "", body))
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var found bool
			for _, c := range resp.Cookies() {
				if c.Name == SessionCookieName && c.Value != "" {
					found = true
					Expect(c.HttpOnly).To(BeTrue())
				}
			}
			Expect(found).To(BeTrue())
		})

		It("returns 401 for bad credentials", func() {
			body := bytes.NewBufferString(`{"email":"jane@example.com","password":"wrong-password"}`)
			resp := do(newRequest("POST", "/api/login", "", body))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("handleLogout", func() {
		It("invalidates the session", func() {
			token, _ := login("jane@example.com")

			resp := do(newRequest("POST", "/api/logout", token, nil))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

			resp = do(newRequest("GET", "/api/me", token, nil))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})
	})

	Describe("card endpoints", func() {
		var (
			token  string
			userID string
		)

		BeforeEach(func() {
			token, userID = login("jane@example.com")
		})

		It("creates and fetches a card", func() {
			body := bytes.NewBufferString(`{"name":"John Smith","company":"Widgets Inc"}`)
			resp := do(newRequest("POST", "/api/cards", token, body))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			var created Card
			decodeBody(resp, &created)
			Expect(created.OwnerID).To(Equal(userID))

			resp = do(newRequest("GET", "/api/cards/"+created.ID, token, nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var got Card
			decodeBody(resp, &got)
			Expect(got.Name).To(Equal("John Smith"))
		})

		It("rejects a card without a name", func() {
			body := bytes.NewBufferString(`{"company":"Widgets Inc"}`)
			resp := do(newRequest("POST", "/api/cards", token, body))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("lists only visible cards, filtered by ?q=", func() {
			db.cards["mine"] = &Card{ID: "mine", OwnerID: userID, Name: "John Smith", Company: "Widgets Inc"}
			db.cards["other"] = &Card{ID: "other", OwnerID: "someone-else", Name: "Hidden Person"}

			resp := do(newRequest("GET", "/api/cards?q=widgets", token, nil))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var cards []*Card
			decodeBody(resp, &cards)
			Expect(cards).To(HaveLen(1))
			Expect(cards[0].ID).To(Equal("mine"))
		})

		It("returns 403 for a card the user cannot see", func() {
			db.cards["other"] = &Card{ID: "other", OwnerID: "someone-else", Name: "Hidden"}
			resp := do(newRequest("GET", "/api/cards/other", token, nil))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
		})

		It("returns 404 for an unknown card", func() {
			resp := do(newRequest("GET", "/api/cards/nope", token, nil))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("deletes an owned card", func() {
			db.cards["mine"] = &Card{ID: "mine", OwnerID: userID, Name: "John"}
			resp := do(newRequest("DELETE", "/api/cards/mine", token, nil))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.cards).NotTo(HaveKey("mine"))
		})

		It("shares a card with another registered user", func() {
			_, friendID := login("friend@example.com")
			db.cards["mine"] = &Card{ID: "mine", OwnerID: userID, Name: "John"}

			body := bytes.NewBufferString(`{"email":"friend@example.com"}`)
			resp := do(newRequest("POST", "/api/cards/mine/share", token, body))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var card Card
			decodeBody(resp, &card)
			Expect(card.SharedWith).To(ConsistOf(friendID))
		})

		It("rejects sharing with an unregistered email", func() {
			db.cards["mine"] = &Card{ID: "mine", OwnerID: userID, Name: "John"}
			body := bytes.NewBufferString(`{"email":"nobody@example.com"}`)
			resp := do(newRequest("POST", "/api/cards/mine/share", token, body))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("card images", func() {
		var (
			token  string
			userID string
		)

		BeforeEach(func() {
			token, userID = login("jane@example.com")
			db.cards["mine"] = &Card{ID: "mine", OwnerID: userID, Name: "John"}
		})

		It("replaces and serves the card image", func() {
			body, contentType := multipartBody("card.jpg", testJPEG(1920, 1080))
			req := newRequest("PUT", "/api/cards/mine/image", token, nil)
			req.Body = io.NopCloser(body)
			req.ContentLength = int64(body.Len())
			req.Header.Set("Content-Type", contentType)

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var card Card
			decodeBody(resp, &card)
			Expect(card.ImagePath).NotTo(BeEmpty())

			resp = do(newRequest("GET", "/api/cards/mine/image", token, nil))
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(Equal("image/jpeg"))
			data, err := io.ReadAll(resp.Body)
			Expect(err).NotTo(HaveOccurred())
			Expect(data).NotTo(BeEmpty())
		})

		It("returns 404 when the card has no image", func() {
			resp := do(newRequest("GET", "/api/cards/mine/image", token, nil))
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("handleCapture", func() {
		var token string

		BeforeEach(func() {
			token, _ = login("jane@example.com")
		})

		It("requires authentication", func() {
			body, contentType := multipartBody("frame.jpg", testJPEG(1920, 1080))
			req := newRequest("POST", "/api/capture", "", nil)
			req.Body = io.NopCloser(body)
			req.ContentLength = int64(body.Len())
			req.Header.Set("Content-Type", contentType)

			resp := do(req)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("returns a draft with extracted fields and a stored image", func() {
			body, contentType := multipartBody("frame.jpg", testJPEG(1920, 1080))
			req := newRequest("POST", "/api/capture", token, nil)
			req.Body = io.NopCloser(body)
			req.ContentLength = int64(body.Len())
			req.Header.Set("Content-Type", contentType)

			resp := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var draft Draft
			decodeBody(resp, &draft)
			Expect(draft.ImageID).NotTo(BeEmpty())
			Expect(storage.files).To(HaveKey(draft.ImageID))
			Expect(draft.Fields.Name).To(Equal("Jane Doe"))
			Expect(draft.Fields.Email).To(Equal("jane.doe@acme.com"))
			Expect(db.cards).To(BeEmpty())
		})

		It("rejects a request without a file", func() {
			var buf bytes.Buffer
			writer := multipart.NewWriter(&buf)
			Expect(writer.Close()).To(Succeed())

			req := newRequest("POST", "/api/capture", token, nil)
			req.Body = io.NopCloser(&buf)
			req.ContentLength = int64(buf.Len())
			req.Header.Set("Content-Type", writer.FormDataContentType())

			resp := do(req)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("rejects an undecodable frame", func() {
			body, contentType := multipartBody("frame.jpg", []byte("garbage"))
			req := newRequest("POST", "/api/capture", token, nil)
			req.Body = io.NopCloser(body)
			req.ContentLength = int64(body.Len())
			req.Header.Set("Content-Type", contentType)

			resp := do(req)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})
	})
})
