package tn3270_test

import (
	"context"
	"io"
	"net"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/OpenTraceLab/OpenTraceBSC/pkg/tn3270"
)

var _ = Describe("Client", func() {
	var (
		hostConn   net.Conn
		clientConn net.Conn
		client     *tn3270.Client
		records    chan []byte
		runErr     chan error
		cancel     context.CancelFunc
	)

	readN := func(n int) []byte {
		buf := make([]byte, n)
		_, err := io.ReadFull(hostConn, buf)
		Expect(err).NotTo(HaveOccurred())
		return buf
	}

	BeforeEach(func() {
		hostConn, clientConn = net.Pipe()
		hostConn.SetDeadline(time.Now().Add(2 * time.Second))

		client = tn3270.NewClient(clientConn, "IBM-3278-2", nil)
		records = make(chan []byte, 4)
		runErr = make(chan error, 1)

		// The goroutines outlive this spec; bind them to this spec's client
		// and channels, not the variables the next BeforeEach reassigns.
		c, recs, done := client, records, runErr
		c.OnRecord(func(r []byte) { recs <- r })

		var ctx context.Context
		ctx, cancel = context.WithCancel(context.Background())
		go func() {
			defer GinkgoRecover()
			done <- c.Run(ctx)
		}()
	})

	AfterEach(func() {
		cancel()
		client.Close()
		hostConn.Close()
	})

	It("answers DO EOR with WILL EOR", func() {
		_, err := hostConn.Write([]byte{tn3270.IAC, tn3270.DO, tn3270.OptEOR})
		Expect(err).NotTo(HaveOccurred())
		Expect(readN(3)).To(Equal([]byte{tn3270.IAC, tn3270.WILL, tn3270.OptEOR}))
		Eventually(func() bool { return client.Options().Enabled(tn3270.OptEOR) }).Should(BeTrue())
	})

	It("refuses options it does not support", func() {
		_, err := hostConn.Write([]byte{tn3270.IAC, tn3270.WILL, 1})
		Expect(err).NotTo(HaveOccurred())
		Expect(readN(3)).To(Equal([]byte{tn3270.IAC, tn3270.DONT, 1}))
	})

	It("reports its terminal type", func() {
		_, err := hostConn.Write([]byte{tn3270.IAC, tn3270.SB, tn3270.OptTType, tn3270.SEND, tn3270.IAC, tn3270.SE})
		Expect(err).NotTo(HaveOccurred())

		want := append([]byte{tn3270.IAC, tn3270.SB, tn3270.OptTType, tn3270.IS}, "IBM-3278-2"...)
		want = append(want, tn3270.IAC, tn3270.SE)
		Expect(readN(len(want))).To(Equal(want))
	})

	It("delivers host records", func() {
		_, err := hostConn.Write([]byte{0xF1, 0xC2, 0xFF, 0xFF, tn3270.IAC, tn3270.EOR})
		Expect(err).NotTo(HaveOccurred())
		Eventually(records).Should(Receive(Equal([]byte{0xF1, 0xC2, 0xFF})))
	})

	It("sends records escaped and EOR terminated", func() {
		go func() {
			defer GinkgoRecover()
			Expect(client.SendRecord([]byte{0x88, 0xFF})).To(Succeed())
		}()
		Expect(readN(5)).To(Equal([]byte{0x88, 0xFF, 0xFF, tn3270.IAC, tn3270.EOR}))
	})

	It("returns nil from Run when the host hangs up", func() {
		hostConn.Close()
		Eventually(runErr).Should(Receive(BeNil()))
	})

	It("returns the context error when cancelled", func() {
		cancel()
		Eventually(runErr).Should(Receive(MatchError(context.Canceled)))
	})
})

var _ = Describe("Dial", func() {
	It("connects over TCP", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		defer ln.Close()

		accepted := make(chan net.Conn, 1)
		go func() {
			conn, err := ln.Accept()
			if err == nil {
				accepted <- conn
			}
		}()

		c, err := tn3270.Dial(context.Background(), ln.Addr().String(), "", nil)
		Expect(err).NotTo(HaveOccurred())
		defer c.Close()
		Expect(c.TerminalType()).To(Equal(tn3270.DefaultTerminalType))

		var conn net.Conn
		Eventually(accepted).Should(Receive(&conn))
		conn.Close()
	})

	It("fails for a closed port", func() {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		Expect(err).NotTo(HaveOccurred())
		addr := ln.Addr().String()
		ln.Close()

		_, err = tn3270.Dial(context.Background(), addr, "", nil)
		Expect(err).To(HaveOccurred())
	})
})
