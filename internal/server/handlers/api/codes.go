package api

const (
	// Generic request/server errors
	CodeInvalidRequest = "E_INVALID_REQUEST" // bad or invalid request
	CodeRateLimited    = "E_RATE_LIMITED"    // rate limit exceeded
	CodeInternalError  = "E_INTERNAL_ERROR"  // internal server error
	CodeAccessDenied   = "E_ACCESS_DENIED"   // access denied

	// Auth errors
	CodeAuthInvalidCredentials    = "E_AUTH_INVALID_CREDENTIALS"     // token is invalid, expired, or malformed.
	CodeAuthTokenGenerationFailed = "E_AUTH_TOKEN_GENERATION_FAILED" // a failure while signing a new token.
	CodeAuthUnknownClient         = "E_AUTH_UNKNOWN_CLIENT"          // the oauth client id is not registered.

	// File errors
	CodeFileNotFound     = "E_FILE_NOT_FOUND"               // the file does not exist for this user.
	CodeVersionConflict  = "E_VERSION_CONFLICT"             // If-Match names a version that is no longer current.
	CodeFileListFailed   = "E_FILE_LIST_OPERATION_FAILED"   // a failure while listing files.
	CodeFileGetFailed    = "E_FILE_GET_OPERATION_FAILED"    // a failure while reading a file.
	CodeFilePutFailed    = "E_FILE_PUT_OPERATION_FAILED"    // a failure while writing a file.
	CodeFileDeleteFailed = "E_FILE_DELETE_OPERATION_FAILED" // a failure while deleting a file.
)
