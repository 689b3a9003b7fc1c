package main

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"os"
	"time"

	"github.com/mr-tron/base58"
)

type client struct {
	base string
	http *http.Client
}

func (c client) call(ctx context.Context, method, path, token string, body, out any) int {
	var payload bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&payload).Encode(body); err != nil {
			log.Fatalf("encode %s: %v", path, err)
		}
	}
	req, err := http.NewRequestWithContext(ctx, method, c.base+path, &payload)
	if err != nil {
		log.Fatalf("request %s: %v", path, err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		log.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()
	if out != nil && resp.StatusCode < 300 {
		if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
			log.Fatalf("decode %s: %v", path, err)
		}
	}
	return resp.StatusCode
}

func expect(step string, got, want int) {
	if got != want {
		log.Fatalf("%s: expected HTTP %d, got %d", step, want, got)
	}
}

func main() {
	base := os.Getenv("IDEABOARD_API_URL")
	if base == "" {
		base = "http://localhost:8080"
	}
	c := client{base: base, http: &http.Client{Timeout: 5 * time.Second}}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		log.Fatalf("generate wallet: %v", err)
	}
	wallet := base58.Encode(pub)

	message := "Sign in to ideaboard\nWallet: " + wallet
	var challenge struct {
		Message string `json:"message"`
	}
	if c.call(ctx, http.MethodGet, "/v1/auth/nonce/"+wallet, "", nil, &challenge) == http.StatusOK {
		message = challenge.Message
	}

	var login struct {
		Token string `json:"token"`
		User  struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	expect("login", c.call(ctx, http.MethodPost, "/v1/auth/login", "", map[string]string{
		"publicKey": wallet,
		"signature": base58.Encode(ed25519.Sign(priv, []byte(message))),
		"message":   message,
	}, &login), http.StatusOK)

	var created struct {
		Token string `json:"token"`
		Meta  struct {
			ID string `json:"id"`
		} `json:"meta"`
	}
	expect("create token", c.call(ctx, http.MethodPost, "/v1/tokens", login.Token, map[string]any{
		"name":   "smoke",
		"scopes": []string{"post:read"},
	}, &created), http.StatusCreated)

	expect("use token", c.call(ctx, http.MethodGet, "/v1/auth/principal", created.Token, nil, nil), http.StatusOK)
	expect("token cannot manage tokens", c.call(ctx, http.MethodGet, "/v1/tokens", created.Token, nil, nil), http.StatusUnauthorized)
	expect("revoke token", c.call(ctx, http.MethodDelete, "/v1/tokens/"+created.Meta.ID, login.Token, nil, nil), http.StatusOK)

	expect("revoked token rejected", c.call(ctx, http.MethodGet, "/v1/auth/principal", created.Token, nil, nil), http.StatusUnauthorized)

	fmt.Printf("auth smoke test passed: user=%s token=%s\n", login.User.ID, created.Meta.ID)
}
