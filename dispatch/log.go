package dispatch

import (
	"github.com/sirupsen/logrus"

	"tlsclient/logging"
)

var log *logrus.Logger

func init() {
	log = logging.GetLogger()
}
