// Package v4l2 drives Linux capture nodes through the V4L2 API.
package v4l2
