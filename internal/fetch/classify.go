package fetch

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/xml"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/url"
	"os"
	"syscall"

	"github.com/mmcdole/gofeed"

	"github.com/lostsidewalk/newsgears-rss-importer/internal/model"
)

// Classify は任意のエラーを閉じた分類を持つ*model.FeedErrorへ変換する。
// 既に*model.FeedErrorであればそのまま返す。分類はif-else連鎖ではなく
// 優先順位付きの判定で行い、どの分類にも一致しないエラーはOTHERに落ちる。
func Classify(feedURL string, err error) *model.FeedError {
	var fe *model.FeedError
	if errors.As(err, &fe) {
		return fe
	}
	return &model.FeedError{
		FeedURL: feedURL,
		Type:    classifyError(err),
		Cause:   err,
	}
}

// classifyError はエラーを例外分類へマップする。判定順序が分類の優先度:
// より具体的な分類を先に試し、包括的な分類を後に回す。
func classifyError(err error) model.ExceptionType {
	if err == nil {
		return model.ExceptionOther
	}

	if errors.Is(err, fs.ErrNotExist) {
		return model.ExceptionFileNotFound
	}

	var recordHeaderErr tls.RecordHeaderError
	var certVerifyErr *tls.CertificateVerificationError
	var unknownAuthorityErr x509.UnknownAuthorityError
	var hostnameErr x509.HostnameError
	var certInvalidErr x509.CertificateInvalidError
	if errors.As(err, &recordHeaderErr) ||
		errors.As(err, &certVerifyErr) ||
		errors.As(err, &unknownAuthorityErr) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &certInvalidErr) {
		return model.ExceptionSSLHandshake
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsNotFound {
			return model.ExceptionUnknownHost
		}
		return model.ExceptionSocketError
	}

	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, os.ErrDeadlineExceeded) {
		return model.ExceptionSocketTimeout
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return model.ExceptionConnectRefused
	}

	var opErr *net.OpError
	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.As(err, &opErr) {
		return model.ExceptionSocketError
	}

	var urlErr *url.Error
	if errors.As(err, &urlErr) && urlErr.Op == "parse" {
		return model.ExceptionIllegalArgument
	}

	var xmlErr *xml.SyntaxError
	if errors.As(err, &xmlErr) || errors.Is(err, gofeed.ErrFeedTypeNotDetected) {
		return model.ExceptionParsingFeed
	}

	var syscallErr *os.SyscallError
	if errors.Is(err, io.ErrUnexpectedEOF) || errors.As(err, &syscallErr) {
		return model.ExceptionIOError
	}

	return model.ExceptionOther
}
