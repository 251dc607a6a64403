package threads_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"threadq/internal/publisher"
	"threadq/internal/publisher/threads"
	"threadq/internal/publisher/threads/threadstest"
	"threadq/internal/task"
)

func TestPostTextOnly(t *testing.T) {
	t.Parallel()
	srv := threadstest.NewServer()
	defer srv.Close()

	sess, err := threads.Open(nil, threads.Options{BaseURL: srv.URL, UserAgent: "ua/1"})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	id, err := threads.Post(context.Background(), sess, task.Task{Text: "hello + world", ReplyToID: "99"}, "dev-1")
	if err != nil {
		t.Fatalf("Post() = %v", err)
	}
	if id != "3141_42" {
		t.Fatalf("post id = %q", id)
	}
	reqs := srv.Requests()
	if len(reqs) != 2 || reqs[1].Path != "/media/configure_text_only_post/" {
		t.Fatalf("paths = %v", srv.Paths())
	}
	p := reqs[1].Payload
	if p["caption"] != "hello + world" || p["_uid"] != "42" || p["device_id"] != "dev-1" {
		t.Fatalf("payload = %v", p)
	}
	info, _ := p["text_post_app_info"].(map[string]any)
	if info["reply_id"] != "99" {
		t.Fatalf("reply target = %v", info)
	}
	if ua := reqs[0].Header.Get("User-Agent"); ua != "ua/1" {
		t.Fatalf("User-Agent = %q", ua)
	}
}

func TestPostWithImage(t *testing.T) {
	t.Parallel()
	srv := threadstest.NewServer()
	defer srv.Close()

	sess, err := threads.Open(nil, threads.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()

	if _, err := threads.Post(context.Background(), sess, task.Task{Text: "pic", ImageURL: srv.URL + "/image.jpg"}, "d"); err != nil {
		t.Fatalf("Post() = %v", err)
	}
	reqs := srv.Requests()
	last := reqs[len(reqs)-1]
	if last.Path != "/media/configure_text_post_app_feed/" || last.Payload["upload_id"] != "upload-1" {
		t.Fatalf("paths = %v payload = %v", srv.Paths(), last.Payload)
	}
}

func TestStatusMapping(t *testing.T) {
	t.Parallel()
	srv := threadstest.NewServer()
	defer srv.Close()
	srv.Authorized = func(h http.Header) bool { return h.Get("Authorization") == "ok" }

	sess, err := threads.Open(nil, threads.Options{BaseURL: srv.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer sess.Close()
	if _, err := sess.CurrentUser(context.Background()); !errors.Is(err, publisher.ErrUnauthenticated) {
		t.Fatalf("CurrentUser() = %v, want ErrUnauthenticated", err)
	}

	rejecting := threadstest.NewServer()
	defer rejecting.Close()
	rejecting.RejectConfigure = true
	sess2, err := threads.Open(nil, threads.Options{BaseURL: rejecting.URL})
	if err != nil {
		t.Fatal(err)
	}
	defer sess2.Close()
	_, err = threads.Post(context.Background(), sess2, task.Task{Text: "x"}, "d")
	if !errors.Is(err, publisher.ErrRejected) {
		t.Fatalf("Post() = %v, want ErrRejected", err)
	}
}

func TestOpenRejectsBadBaseURL(t *testing.T) {
	t.Parallel()
	if _, err := threads.Open(nil, threads.Options{BaseURL: "not a url"}); err == nil {
		t.Fatal("expected error")
	}
}
