package app

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func TestCloserStackRunsInReverse(t *testing.T) {
	var order []int
	var c closerStack
	for i := range 3 {
		c.push(func() { order = append(order, i) })
	}
	c.run()
	if fmt.Sprint(order) != "[2 1 0]" {
		t.Fatalf("order = %v, want [2 1 0]", order)
	}
	c.run()
	if len(order) != 3 {
		t.Fatalf("second run re-ran closers: %v", order)
	}
}

func TestIgnoreCanceled(t *testing.T) {
	if err := ignoreCanceled(fmt.Errorf("hub: %w", context.Canceled)); err != nil {
		t.Fatalf("wrapped cancel = %v, want nil", err)
	}
	boom := errors.New("boom")
	if err := ignoreCanceled(boom); !errors.Is(err, boom) {
		t.Fatalf("got %v, want boom", err)
	}
}

func TestReportArchiverNilWhenDisabled(t *testing.T) {
	md := &MarketData{}
	if md.ReportArchiver() != nil {
		t.Fatal("expected nil interface without s3")
	}
}
