package main

import (
	"net/http"
	"time"
)

// Outbound client for the OpenAI-compatible oracle endpoint. The per-call
// deadline comes from the request context; this timeout is a backstop and
// must stay above the synthesize timeout.
const oracleHTTPTimeout = 90 * time.Second

var oracleHTTPClient = &http.Client{
	Timeout: oracleHTTPTimeout,
}
