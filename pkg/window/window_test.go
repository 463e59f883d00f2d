// SPDX-FileCopyrightText: Copyright 2025 Stacklok, Inc.
// SPDX-License-Identifier: Apache-2.0

package window

import (
	"errors"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingOpener struct {
	opened []string
	err    error
}

func (r *recordingOpener) open(target string) error {
	r.opened = append(r.opened, target)
	return r.err
}

func TestNew(t *testing.T) {
	t.Parallel()

	w, err := New("https://app.example/some/path?x=1")
	require.NoError(t, err)
	assert.Equal(t, "https://app.example", w.Origin())
	assert.Equal(t, "https://app.example/", w.Location().String())

	_, err = New("app.example")
	require.Error(t, err)
}

func TestWindow_Navigate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name         string
		target       string
		wantLocation string
		wantOpened   []string
	}{
		{
			name:         "relative path stays in app",
			target:       "/",
			wantLocation: "https://app.example/",
		},
		{
			name:         "absolute same origin",
			target:       "https://app.example/callback?code=c",
			wantLocation: "https://app.example/callback?code=c",
		},
		{
			name:         "external target opens browser",
			target:       "https://idp/auth?client_id=app1",
			wantLocation: "https://app.example/",
			wantOpened:   []string{"https://idp/auth?client_id=app1"},
		},
		{
			name:         "different port is a different origin",
			target:       "https://app.example:8443/",
			wantLocation: "https://app.example/",
			wantOpened:   []string{"https://app.example:8443/"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			opener := &recordingOpener{}
			w, err := New("https://app.example", WithOpener(opener.open))
			require.NoError(t, err)

			require.NoError(t, w.Navigate(tt.target))
			assert.Equal(t, tt.wantLocation, w.Location().String())
			assert.Equal(t, tt.wantOpened, opener.opened)
		})
	}
}

func TestWindow_NavigateOpenerFailure(t *testing.T) {
	t.Parallel()

	opener := &recordingOpener{err: errors.New("no display")}
	w, err := New("http://localhost:8666", WithOpener(opener.open))
	require.NoError(t, err)

	err = w.Navigate("https://idp/auth")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no display")
}

func TestWindow_VisitAndReplace(t *testing.T) {
	t.Parallel()

	w, err := New("http://localhost:8666")
	require.NoError(t, err)

	require.NoError(t, w.Visit("/callback?code=c&state=s"))
	loc := w.Location()
	assert.Equal(t, "/callback", loc.Path)
	assert.Equal(t, "c", loc.Query().Get("code"))

	// Location returns a copy.
	loc.RawQuery = ""
	assert.Equal(t, "c", w.Location().Query().Get("code"))

	w.ReplaceLocation(&url.URL{Scheme: "http", Host: "localhost:8666", Path: "/callback"})
	assert.Equal(t, "http://localhost:8666/callback", w.Location().String())

	require.Error(t, w.Visit("https://evil.example/callback?code=c"))
	assert.Equal(t, "http://localhost:8666/callback", w.Location().String())
}
