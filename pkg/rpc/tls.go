package rpc

import (
	"crypto/tls"
	"crypto/x509"
	"os"

	"google.golang.org/grpc/credentials"

	sserr "github.com/StricklySoft/storefront/pkg/errors"
)

// Both sides of the channel present a certificate signed by the shared CA.
// The server refuses clients without one.

// ServerCredentials returns transport credentials that require and verify
// a client certificate signed by a CA in pool.
func ServerCredentials(cert tls.Certificate, pool *x509.CertPool) credentials.TransportCredentials {
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.RequireAndVerifyClientCert,
		ClientCAs:    pool,
		MinVersion:   tls.VersionTLS12,
	})
}

// ClientCredentials returns transport credentials that present cert and
// verify the server, named serverName, against pool.
func ClientCredentials(cert tls.Certificate, pool *x509.CertPool, serverName string) credentials.TransportCredentials {
	return credentials.NewTLS(&tls.Config{
		Certificates: []tls.Certificate{cert},
		RootCAs:      pool,
		ServerName:   serverName,
		MinVersion:   tls.VersionTLS12,
	})
}

// LoadServerCredentials reads files and calls [ServerCredentials].
func LoadServerCredentials(files TLSFiles) (credentials.TransportCredentials, error) {
	cert, pool, err := loadKeyPair(files)
	if err != nil {
		return nil, err
	}
	return ServerCredentials(cert, pool), nil
}

// LoadClientCredentials reads files and calls [ClientCredentials].
func LoadClientCredentials(files TLSFiles, serverName string) (credentials.TransportCredentials, error) {
	cert, pool, err := loadKeyPair(files)
	if err != nil {
		return nil, err
	}
	return ClientCredentials(cert, pool, serverName), nil
}

func loadKeyPair(files TLSFiles) (tls.Certificate, *x509.CertPool, error) {
	if err := files.check(); err != nil {
		return tls.Certificate{}, nil, err
	}
	cert, err := tls.LoadX509KeyPair(files.CertFile, files.KeyFile)
	if err != nil {
		return tls.Certificate{}, nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"rpc: failed to load key pair %s", files.CertFile)
	}
	caPEM, err := os.ReadFile(files.CAFile)
	if err != nil {
		return tls.Certificate{}, nil, sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"rpc: failed to read CA file %s", files.CAFile)
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(caPEM) {
		return tls.Certificate{}, nil, sserr.Newf(sserr.CodeInternalConfiguration,
			"rpc: CA file %s contains no certificates", files.CAFile)
	}
	return cert, pool, nil
}
