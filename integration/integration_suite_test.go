// Package integration contains end-to-end tests against live services.
// Specs skip themselves when the service they need is not reachable.
package integration

import (
	"testing"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

func TestIntegration(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "dos-queue Integration Suite")
}
