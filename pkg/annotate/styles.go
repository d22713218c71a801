package annotate

import (
	"github.com/go-shiori/dom"
	"golang.org/x/net/html"
)

// StyleID is the id of the injected stylesheet.
const StyleID = "annotator-styles"

const stylesheet = `
.annotated-phrase {
  text-decoration: underline wavy #d32f2f;
  text-decoration-thickness: 1.5px;
  cursor: help;
  background-color: transparent;
}
.annotator-tooltip {
  position: fixed;
  max-width: 650px;
  background-color: #263238;
  color: #eceff1;
  font-family: sans-serif;
  font-size: 1em;
  line-height: 1.5;
  text-align: left;
  padding: 12px 15px;
  border-radius: 6px;
  z-index: 100000;
  pointer-events: none;
  opacity: 0;
  transition: opacity 0.25s ease-in-out;
  box-shadow: 0 4px 8px rgba(0,0,0,0.3);
}
.annotator-tooltip.visible { opacity: 1; }
.annotator-tooltip hr { border: 0; border-top: 1px solid #546e7a; margin: 8px 0; }
#annotator-message,
#annotator-processing-message {
  position: fixed;
  top: 20px;
  right: 20px;
  padding: 12px 18px;
  border-radius: 5px;
  color: white;
  font-family: sans-serif;
  font-size: 14px;
  z-index: 10001;
  opacity: 0;
  transition: opacity 0.4s ease-in-out;
  box-shadow: 0 2px 8px rgba(0,0,0,0.25);
  pointer-events: none;
}
#annotator-message.visible,
#annotator-processing-message.visible { opacity: 1; }
#annotator-message.success { background-color: #4CAF50; }
#annotator-message.error { background-color: #f44336; }
#annotator-message.warning { background-color: #ff9800; }
#annotator-message.info { background-color: #2196F3; }
#annotator-processing-message { background-color: #607d8b; }
`

// injectStyles adds the stylesheet once per document.
func (e *Engine) injectStyles() {
	if e.styled {
		return
	}
	if len(dom.QuerySelectorAll(e.doc, "#"+StyleID)) > 0 {
		e.styled = true
		return
	}
	host := dom.QuerySelector(e.doc, "head")
	if host == nil {
		host = e.body
	}
	if host == nil {
		return
	}
	style := dom.CreateElement("style")
	dom.SetAttribute(style, "id", StyleID)
	dom.SetAttribute(style, UIAttr, "styles")
	style.AppendChild(&html.Node{Type: html.TextNode, Data: stylesheet})
	host.AppendChild(style)
	e.styled = true
}
