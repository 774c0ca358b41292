package wire

import (
	readerbridge "github.com/wippyai/reader-bridge"
	"github.com/wippyai/reader-bridge/errors"
)

// Method names understood by the reader manager.
const (
	MethodDisposeReader           = "disposeReader"
	MethodGetItems                = "getItems"
	MethodGetItemFormats          = "getItemFormats"
	MethodItemFormatIsSynthesized = "itemFormatIsSynthesized"
	MethodGetItemSuggestedName    = "getItemSuggestedName"
	MethodGetItemData             = "getItemData"
	MethodCancelProgress          = "cancelProgress"
	MethodCanGetVirtualFile       = "canGetVirtualFile"
	MethodGetVirtualFile          = "getVirtualFile"

	// methodItemFormatIsSynthetized is the spelling older clients send.
	methodItemFormatIsSynthetized = "itemFormatIsSynthetized"
)

// Methods lists every request method in dispatch order.
var Methods = []string{
	MethodDisposeReader,
	MethodGetItems,
	MethodGetItemFormats,
	MethodItemFormatIsSynthesized,
	MethodGetItemSuggestedName,
	MethodGetItemData,
	MethodCancelProgress,
	MethodCanGetVirtualFile,
	MethodGetVirtualFile,
}

// Request is one of the request types in this file.
type Request interface {
	Method() string
	isRequest()
}

// ReaderRequest is implemented by requests addressed to a reader handle.
type ReaderRequest interface {
	Request
	Reader() int64
}

type DisposeReader struct {
	ReaderHandle int64
}

type GetItems struct {
	ReaderHandle int64
}

type GetItemFormats struct {
	ItemHandle   int64 `mapstructure:"itemHandle"`
	ReaderHandle int64 `mapstructure:"readerHandle"`
}

type ItemFormatIsSynthesized struct {
	Format       string `mapstructure:"format"`
	ItemHandle   int64  `mapstructure:"itemHandle"`
	ReaderHandle int64  `mapstructure:"readerHandle"`
}

type GetItemSuggestedName struct {
	ItemHandle   int64 `mapstructure:"itemHandle"`
	ReaderHandle int64 `mapstructure:"readerHandle"`
}

type GetItemData struct {
	Format       string `mapstructure:"format"`
	ItemHandle   int64  `mapstructure:"itemHandle"`
	ReaderHandle int64  `mapstructure:"readerHandle"`
	ProgressID   int64  `mapstructure:"progressId"`
}

type CancelProgress struct {
	ProgressID int64
}

type CanGetVirtualFile struct {
	Format       string `mapstructure:"format"`
	ItemHandle   int64  `mapstructure:"itemHandle"`
	ReaderHandle int64  `mapstructure:"readerHandle"`
}

type GetVirtualFile struct {
	Format       string `mapstructure:"format"`
	TargetFolder string `mapstructure:"targetFolder"`
	ItemHandle   int64  `mapstructure:"itemHandle"`
	ReaderHandle int64  `mapstructure:"readerHandle"`
	ProgressID   int64  `mapstructure:"progressId"`
}

func (DisposeReader) Method() string           { return MethodDisposeReader }
func (GetItems) Method() string                { return MethodGetItems }
func (GetItemFormats) Method() string          { return MethodGetItemFormats }
func (ItemFormatIsSynthesized) Method() string { return MethodItemFormatIsSynthesized }
func (GetItemSuggestedName) Method() string    { return MethodGetItemSuggestedName }
func (GetItemData) Method() string             { return MethodGetItemData }
func (CancelProgress) Method() string          { return MethodCancelProgress }
func (CanGetVirtualFile) Method() string       { return MethodCanGetVirtualFile }
func (GetVirtualFile) Method() string          { return MethodGetVirtualFile }

func (DisposeReader) isRequest()           {}
func (GetItems) isRequest()                {}
func (GetItemFormats) isRequest()          {}
func (ItemFormatIsSynthesized) isRequest() {}
func (GetItemSuggestedName) isRequest()    {}
func (GetItemData) isRequest()             {}
func (CancelProgress) isRequest()          {}
func (CanGetVirtualFile) isRequest()       {}
func (GetVirtualFile) isRequest()          {}

func (r DisposeReader) Reader() int64           { return r.ReaderHandle }
func (r GetItems) Reader() int64                { return r.ReaderHandle }
func (r GetItemFormats) Reader() int64          { return r.ReaderHandle }
func (r ItemFormatIsSynthesized) Reader() int64 { return r.ReaderHandle }
func (r GetItemSuggestedName) Reader() int64    { return r.ReaderHandle }
func (r GetItemData) Reader() int64             { return r.ReaderHandle }
func (r CanGetVirtualFile) Reader() int64       { return r.ReaderHandle }
func (r GetVirtualFile) Reader() int64          { return r.ReaderHandle }

// DecodeRequest validates a named call at the boundary. Unknown methods
// fail with an invalid_method error carrying the name; malformed arguments
// fail with invalid_args.
func DecodeRequest(method string, args readerbridge.Value) (Request, error) {
	switch method {
	case MethodDisposeReader:
		h, err := DecodeInt(method, args)
		return DisposeReader{ReaderHandle: h}, err
	case MethodGetItems:
		h, err := DecodeInt(method, args)
		return GetItems{ReaderHandle: h}, err
	case MethodCancelProgress:
		id, err := DecodeInt(method, args)
		return CancelProgress{ProgressID: id}, err
	case MethodGetItemFormats:
		var r GetItemFormats
		err := DecodeArgs(method, args, &r)
		return r, err
	case MethodItemFormatIsSynthesized, methodItemFormatIsSynthetized:
		var r ItemFormatIsSynthesized
		err := DecodeArgs(MethodItemFormatIsSynthesized, args, &r)
		return r, err
	case MethodGetItemSuggestedName:
		var r GetItemSuggestedName
		err := DecodeArgs(method, args, &r)
		return r, err
	case MethodGetItemData:
		var r GetItemData
		err := DecodeArgs(method, args, &r)
		return r, err
	case MethodCanGetVirtualFile:
		var r CanGetVirtualFile
		err := DecodeArgs(method, args, &r)
		return r, err
	case MethodGetVirtualFile:
		var r GetVirtualFile
		err := DecodeArgs(method, args, &r)
		return r, err
	default:
		return nil, errors.InvalidMethod(method)
	}
}

// Encode renders a request back into its wire arguments. Clients use it
// to build calls.
func Encode(r Request) readerbridge.Value {
	switch r := r.(type) {
	case DisposeReader:
		return r.ReaderHandle
	case GetItems:
		return r.ReaderHandle
	case CancelProgress:
		return r.ProgressID
	case GetItemFormats:
		return map[string]readerbridge.Value{"itemHandle": r.ItemHandle, "readerHandle": r.ReaderHandle}
	case ItemFormatIsSynthesized:
		return map[string]readerbridge.Value{"itemHandle": r.ItemHandle, "readerHandle": r.ReaderHandle, "format": r.Format}
	case GetItemSuggestedName:
		return map[string]readerbridge.Value{"itemHandle": r.ItemHandle, "readerHandle": r.ReaderHandle}
	case GetItemData:
		return map[string]readerbridge.Value{
			"itemHandle":   r.ItemHandle,
			"readerHandle": r.ReaderHandle,
			"format":       r.Format,
			"progressId":   r.ProgressID,
		}
	case CanGetVirtualFile:
		return map[string]readerbridge.Value{"itemHandle": r.ItemHandle, "readerHandle": r.ReaderHandle, "format": r.Format}
	case GetVirtualFile:
		return map[string]readerbridge.Value{
			"itemHandle":   r.ItemHandle,
			"readerHandle": r.ReaderHandle,
			"format":       r.Format,
			"progressId":   r.ProgressID,
			"targetFolder": r.TargetFolder,
		}
	default:
		return nil
	}
}
