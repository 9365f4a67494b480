// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Gatehouse Contributors

//go:build integration

package integration_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2" //nolint:revive // ginkgo convention
	. "github.com/onsi/gomega"    //nolint:revive // gomega convention
)

// userCounter keeps usernames unique across specs without database resets.
var userCounter atomic.Int64

func uniqueUsername() string {
	return fmt.Sprintf("user_%d", userCounter.Add(1))
}

func postJSON(path string, payload map[string]string, cookies ...*http.Cookie) (*http.Response, map[string]any) {
	body, err := json.Marshal(payload)
	Expect(err).NotTo(HaveOccurred())

	req, err := http.NewRequest(http.MethodPost, env.baseURL+path, bytes.NewReader(body))
	Expect(err).NotTo(HaveOccurred())
	req.Header.Set("Content-Type", "application/json")
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	return resp, decode(resp)
}

func getJSON(path string, cookies ...*http.Cookie) (*http.Response, map[string]any) {
	req, err := http.NewRequest(http.MethodGet, env.baseURL+path, nil)
	Expect(err).NotTo(HaveOccurred())
	for _, c := range cookies {
		req.AddCookie(c)
	}

	resp, err := http.DefaultClient.Do(req)
	Expect(err).NotTo(HaveOccurred())
	return resp, decode(resp)
}

func decode(resp *http.Response) map[string]any {
	defer resp.Body.Close()
	raw, err := io.ReadAll(resp.Body)
	Expect(err).NotTo(HaveOccurred())
	if len(raw) == 0 {
		return nil
	}
	var body map[string]any
	Expect(json.Unmarshal(raw, &body)).To(Succeed())
	return body
}

func sessionCookie(resp *http.Response) *http.Cookie {
	for _, c := range resp.Cookies() {
		if c.Name == env.cfg.CookieName {
			return c
		}
	}
	return nil
}

func registerAndLogin(password string) (string, *http.Cookie) {
	username := uniqueUsername()

	resp, _ := postJSON("/auth/register", map[string]string{
		"username": username,
		"password": password,
	})
	Expect(resp.StatusCode).To(Equal(http.StatusCreated))

	resp, _ = postJSON("/auth/login", map[string]string{
		"username": username,
		"password": password,
	})
	Expect(resp.StatusCode).To(Equal(http.StatusOK))

	cookie := sessionCookie(resp)
	Expect(cookie).NotTo(BeNil())
	return username, cookie
}

var _ = Describe("Registration", func() {
	It("creates an account and returns it without the password hash", func() {
		username := uniqueUsername()

		resp, body := postJSON("/auth/register", map[string]string{
			"username": username,
			"password": "secret123",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		user := body["user"].(map[string]any)
		Expect(user["username"]).To(Equal(username))
		Expect(user["id"]).NotTo(BeEmpty())
		Expect(user).NotTo(HaveKey("passwordHash"))
	})

	It("rejects a duplicate username regardless of case", func() {
		username := uniqueUsername()

		resp, _ := postJSON("/auth/register", map[string]string{
			"username": username,
			"password": "secret123",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		resp, body := postJSON("/auth/register", map[string]string{
			"username": string(bytes.ToUpper([]byte(username))),
			"password": "othersecret",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusConflict))
		Expect(body["message"]).To(Equal("Username is already taken"))
	})

	It("rejects malformed usernames", func() {
		resp, _ := postJSON("/auth/register", map[string]string{
			"username": "1_starts_with_digit",
			"password": "secret123",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
	})
})

var _ = Describe("Login", func() {
	It("answers valid credentials with a session cookie", func() {
		username := uniqueUsername()
		resp, _ := postJSON("/auth/register", map[string]string{
			"username": username,
			"password": "secret123",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		resp, body := postJSON("/auth/login", map[string]string{
			"username": username,
			"password": "secret123",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["message"]).To(Equal("Welcome!"))

		cookie := sessionCookie(resp)
		Expect(cookie).NotTo(BeNil())
		Expect(cookie.Value).To(HaveLen(64))
		Expect(cookie.HttpOnly).To(BeTrue())
	})

	It("answers wrong password and unknown user identically", func() {
		username := uniqueUsername()
		resp, _ := postJSON("/auth/register", map[string]string{
			"username": username,
			"password": "secret123",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusCreated))

		wrongResp, wrongBody := postJSON("/auth/login", map[string]string{
			"username": username,
			"password": "wrongpass",
		})
		ghostResp, ghostBody := postJSON("/auth/login", map[string]string{
			"username": "ghost_never_registered",
			"password": "wrongpass",
		})

		Expect(wrongResp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(ghostResp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(wrongBody).To(Equal(ghostBody))
		Expect(wrongBody["message"]).To(Equal("Invalid credentials"))
		Expect(sessionCookie(wrongResp)).To(BeNil())
		Expect(sessionCookie(ghostResp)).To(BeNil())
	})
})

var _ = Describe("Session gate", func() {
	It("rejects requests without a cookie", func() {
		resp, body := getJSON("/users")
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(body["message"]).To(Equal("Not logged in."))
	})

	It("rejects a forged cookie with the same body", func() {
		_, bareBody := getJSON("/users")
		resp, forgedBody := getJSON("/users", &http.Cookie{
			Name:  env.cfg.CookieName,
			Value: "00000000000000000000000000000000000000000000000000000000deadbeef",
		})
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(forgedBody).To(Equal(bareBody))
	})

	It("admits a live session to protected routes", func() {
		username, cookie := registerAndLogin("secret123")

		resp, body := getJSON("/me", cookie)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		user := body["user"].(map[string]any)
		Expect(user["username"]).To(Equal(username))

		resp, body = getJSON("/users", cookie)
		Expect(resp.StatusCode).To(Equal(http.StatusOK))
		Expect(body["users"]).NotTo(BeEmpty())
	})
})

var _ = Describe("Logout", func() {
	It("invalidates the session server-side", func() {
		_, cookie := registerAndLogin("secret123")

		resp, _ := postJSON("/auth/logout", nil, cookie)
		Expect(resp.StatusCode).To(Equal(http.StatusNoContent))

		// The old cookie is dead even if the client kept it.
		after, body := getJSON("/me", cookie)
		Expect(after.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(body["message"]).To(Equal("Not logged in."))
	})

	It("is gated itself", func() {
		resp, body := postJSON("/auth/logout", nil)
		Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		Expect(body["message"]).To(Equal("Not logged in."))
	})
})
